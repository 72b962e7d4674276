package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/uploaduser/internal/config"
	"github.com/JonMunkholm/uploaduser/internal/core"
	"github.com/JonMunkholm/uploaduser/internal/sessions"
	"github.com/JonMunkholm/uploaduser/internal/store"
)

// Resources are the long-lived connections behind a Site.
type Resources struct {
	Pool  *pgxpool.Pool
	Store *store.Postgres
	Redis *redis.Client
}

// Close releases every connection.
func (r *Resources) Close() {
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			slog.Warn("closing redis", "error", err)
		}
	}
	if r.Pool != nil {
		r.Pool.Close()
	}
}

// Open connects to the directory database (and Redis for the redis session
// backend), applies the schema when configured to, and builds the Site.
func Open(ctx context.Context, cfg *config.Config) (*Site, *Resources, error) {
	pool, err := store.OpenPool(ctx, cfg.Database.URL, store.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, nil, err
	}
	res := &Resources{Pool: pool, Store: store.NewPostgres(pool)}

	if cfg.Database.AutoMigrate {
		if err := res.Store.Migrate(ctx); err != nil {
			res.Close()
			return nil, nil, err
		}
	}

	invalidator, err := openSessions(ctx, cfg.Sessions, res)
	if err != nil {
		res.Close()
		return nil, nil, err
	}

	site, err := NewSite(cfg, res.Store, invalidator)
	if err != nil {
		res.Close()
		return nil, nil, err
	}
	return site, res, nil
}

func openSessions(ctx context.Context, cfg config.SessionsConfig, res *Resources) (core.SessionInvalidator, error) {
	switch strings.ToLower(cfg.Backend) {
	case sessions.BackendRedis:
		client, err := sessions.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("session backend: %w", err)
		}
		res.Redis = client
		slog.Info("session backend", "backend", sessions.BackendRedis)
		return sessions.NewRedis(client, cfg.KeyPrefix), nil
	case sessions.BackendDB, "":
		slog.Info("session backend", "backend", sessions.BackendDB)
		return sessions.NewPostgres(res.Pool), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}
