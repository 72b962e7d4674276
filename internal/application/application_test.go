package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/uploaduser/internal/config"
	"github.com/JonMunkholm/uploaduser/internal/core"
	"github.com/JonMunkholm/uploaduser/internal/csvsource"
	"github.com/JonMunkholm/uploaduser/internal/store"
	"github.com/JonMunkholm/uploaduser/internal/tracker"
)

func testConfig() *config.Config {
	return &config.Config{
		Upload: config.UploadConfig{MaxConcurrent: 1, MaxWaitTime: time.Second},
		Directory: config.DirectoryConfig{
			LocalHostID:  1,
			DefaultAuth:  "manual",
			EnabledAuths: []string{"email"},
			Languages:    []string{"en"},
		},
		Password: config.PasswordConfig{MinLength: 8, MinDigits: 1, MinLower: 1, MinUpper: 1, MinNonAlnum: 1, BcryptCost: 4},
	}
}

func TestNewSite(t *testing.T) {
	site, err := NewSite(testConfig(), store.NewMemory(), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), site.Settings.LocalHostID)
	assert.True(t, site.Auth.Supported("email"))
	assert.Equal(t, 8, site.Passwords.MinLength)
	assert.Equal(t, 1, site.Limiter.Status().MaxConcurrent)
}

func TestNewSite_RejectsUnknownAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Directory.EnabledAuths = []string{"carrierpigeon"}

	_, err := NewSite(cfg, store.NewMemory(), nil)
	assert.ErrorContains(t, err, "carrierpigeon")
}

func TestSiteUpload(t *testing.T) {
	mem := store.NewMemory()
	site, err := NewSite(testConfig(), mem, nil)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	site.Metrics = tracker.NewMetrics(reg)

	body := "username,firstname,lastname,email\n" +
		"alice,Alice,Smith,alice@example.com\n" +
		"bob,Bob,,bob@example.com\n"
	report := tracker.NewReport(0)

	s, err := site.Upload(context.Background(), "users.csv", strings.NewReader(body),
		csvsource.Options{Delimiter: "comma", Encoding: "utf-8"},
		core.DefaultPolicyOptions(), report)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Created)
	assert.Equal(t, 1, s.Errors)

	got := report.Result()
	require.Len(t, got.Rows, 2)
	assert.Equal(t, "OK", got.Rows[0].Result)
	assert.Equal(t, "NOK", got.Rows[1].Result)

	runs, err := mem.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, s.RunID, runs[0].RunID)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families, "metrics tracker received the run")
}

func TestSiteUpload_IgnoresUnknownColumns(t *testing.T) {
	mem := store.NewMemory()
	site, err := NewSite(testConfig(), mem, nil)
	require.NoError(t, err)

	body := "username,firstname,lastname,email,shoe_size\n" +
		"alice,Alice,Smith,alice@example.com,42\n"
	s, err := site.Upload(context.Background(), "users.csv", strings.NewReader(body),
		csvsource.Options{Delimiter: "comma", Encoding: "utf-8"},
		core.DefaultPolicyOptions(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Created)
	assert.Zero(t, s.Errors)
	users := mem.Users()
	require.Len(t, users, 1)
	assert.NotContains(t, users[0].Fields, "shoe_size")
}

func TestSiteUpload_InvalidPolicy(t *testing.T) {
	site, err := NewSite(testConfig(), store.NewMemory(), nil)
	require.NoError(t, err)

	opts := core.DefaultPolicyOptions()
	opts.Mode = "sometimes"
	_, err = site.Upload(context.Background(), "users.csv", strings.NewReader("username\n"),
		csvsource.Options{}, opts, nil)
	require.Error(t, err)
	assert.Equal(t, "RUN006", core.MapError(err).Code)
}

func TestSiteUpload_BadHeader(t *testing.T) {
	site, err := NewSite(testConfig(), store.NewMemory(), nil)
	require.NoError(t, err)

	_, err = site.Upload(context.Background(), "users.csv", strings.NewReader(""),
		csvsource.Options{}, core.DefaultPolicyOptions(), nil)
	assert.ErrorIs(t, err, csvsource.ErrEmptyFile)
}

type fakePurger struct {
	cutoff time.Time
	n      int64
	err    error
}

func (f *fakePurger) PurgeRuns(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.n, f.err
}

func TestPurgeRuns(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := &fakePurger{n: 3}

	got := purgeRuns(context.Background(), p, 48*time.Hour, func() time.Time { return now })
	assert.Equal(t, int64(3), got)
	assert.Equal(t, now.Add(-48*time.Hour), p.cutoff)

	p.err = errors.New("connection refused")
	assert.Zero(t, purgeRuns(context.Background(), p, time.Hour, func() time.Time { return now }))
}

func TestPurgeRuns_Memory(t *testing.T) {
	mem := store.NewMemory()
	now := time.Now()
	ctx := context.Background()
	require.NoError(t, mem.RecordRun(ctx, core.Summary{RunID: "old", FinishedAt: now.Add(-100 * 24 * time.Hour)}))
	require.NoError(t, mem.RecordRun(ctx, core.Summary{RunID: "new", FinishedAt: now}))

	assert.Equal(t, int64(1), purgeRuns(ctx, mem, 90*24*time.Hour, time.Now))

	_, err := mem.GetRun(ctx, "old")
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestStartRetention_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakePurger{}
	done := make(chan struct{})
	go func() {
		StartRetention(ctx, p, RetentionConfig{CheckInterval: time.Hour})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("StartRetention did not return after cancel")
	}
}

func TestSitePreview(t *testing.T) {
	mem := store.NewMemory()
	site, err := NewSite(testConfig(), mem, nil)
	require.NoError(t, err)

	body := "username,firstname,lastname,email\nalice,Alice,Smith,alice@example.com\n"
	p, err := site.Preview(context.Background(), strings.NewReader(body),
		csvsource.Options{}, core.DefaultPolicyOptions(), 0)
	require.NoError(t, err)

	assert.Equal(t, 1, p.Summary.Create)
	assert.Empty(t, mem.Users())
}
