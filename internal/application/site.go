// Package application wires configuration, the directory store and the
// upload engine together. Both commands build a Site once at startup and
// ask it for a runner per upload, since every upload carries its own policy.
package application

import (
	"context"
	"fmt"
	"io"

	"github.com/JonMunkholm/uploaduser/internal/auth"
	"github.com/JonMunkholm/uploaduser/internal/config"
	"github.com/JonMunkholm/uploaduser/internal/core"
	"github.com/JonMunkholm/uploaduser/internal/csvsource"
	"github.com/JonMunkholm/uploaduser/internal/logging"
	"github.com/JonMunkholm/uploaduser/internal/store"
	"github.com/JonMunkholm/uploaduser/internal/tracker"
)

// Site holds the collaborators shared by every run.
type Site struct {
	Store     store.Directory
	Sessions  core.SessionInvalidator
	Auth      *auth.Registry
	Hasher    auth.BcryptHasher
	Passwords auth.PasswordPolicy
	Languages auth.LanguageSet
	Settings  core.Settings
	Limiter   *core.RunLimiter

	// Metrics is optional; when set every run also reports to it.
	Metrics *tracker.Metrics
}

// NewSite builds a Site from configuration. sessions may be nil, in which
// case logout-inducing changes skip session invalidation.
func NewSite(cfg *config.Config, dir store.Directory, sessions core.SessionInvalidator) (*Site, error) {
	registry, err := auth.NewRegistry(cfg.Directory.EnabledAuths)
	if err != nil {
		return nil, fmt.Errorf("auth registry: %w", err)
	}
	if _, err := registry.Resolve(cfg.Directory.DefaultAuth); err != nil {
		return nil, fmt.Errorf("default auth %q: %w", cfg.Directory.DefaultAuth, err)
	}

	return &Site{
		Store:    dir,
		Sessions: sessions,
		Auth:     registry,
		Hasher:   auth.NewBcryptHasher(cfg.Password.BcryptCost),
		Passwords: auth.PasswordPolicy{
			MinLength:   cfg.Password.MinLength,
			MinDigits:   cfg.Password.MinDigits,
			MinLower:    cfg.Password.MinLower,
			MinUpper:    cfg.Password.MinUpper,
			MinNonAlnum: cfg.Password.MinNonAlnum,
		},
		Languages: auth.NewLanguageSet(cfg.Directory.Languages),
		Settings: core.Settings{
			LocalHostID: cfg.Directory.LocalHostID,
			DefaultAuth: cfg.Directory.DefaultAuth,
		},
		Limiter: core.NewRunLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
	}, nil
}

// Runner builds an engine for opts and a runner reporting to t.
func (s *Site) Runner(opts core.PolicyOptions, t core.Tracker) (*core.Runner, error) {
	policy, err := core.ParsePolicy(opts)
	if err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	engine, err := core.NewEngine(policy, s.Settings, core.Deps{
		Directory:  s.Store,
		Executor:   s.Store,
		Sessions:   s.Sessions,
		Directives: s.Store,
		Auth:       s.Auth,
		Hasher:     s.Hasher,
		Passwords:  s.Passwords,
		Languages:  s.Languages,
	})
	if err != nil {
		return nil, err
	}

	trackers := tracker.Multi{}
	if t != nil {
		trackers = append(trackers, t)
	}
	if s.Metrics != nil {
		trackers = append(trackers, s.Metrics)
	}

	return core.NewRunner(engine,
		core.WithTracker(trackers),
		core.WithRecorder(s.Store),
		core.WithLimiter(s.Limiter),
	), nil
}

// Upload runs one delimited file through the engine. File-level problems
// (encoding, header) fail before any row is read and before the run gate is
// taken; the returned summary is then zero.
func (s *Site) Upload(ctx context.Context, name string, r io.Reader, csvOpts csvsource.Options, opts core.PolicyOptions, t core.Tracker) (core.Summary, error) {
	runner, err := s.Runner(opts, t)
	if err != nil {
		return core.Summary{}, err
	}

	src, err := csvsource.Open(r, csvOpts)
	if err != nil {
		return core.Summary{}, err
	}
	if unknown := src.UnknownColumns(); len(unknown) > 0 {
		logging.FromContext(ctx).Warn("ignoring unknown columns",
			"source", name,
			"columns", unknown,
		)
	}

	return runner.Run(ctx, name, src)
}

// Preview prepares every row of a delimited file without writing anything.
func (s *Site) Preview(ctx context.Context, r io.Reader, csvOpts csvsource.Options, opts core.PolicyOptions, maxRows int) (core.Preview, error) {
	runner, err := s.Runner(opts, nil)
	if err != nil {
		return core.Preview{}, err
	}
	src, err := csvsource.Open(r, csvOpts)
	if err != nil {
		return core.Preview{}, err
	}
	return runner.Preview(ctx, src, maxRows)
}
