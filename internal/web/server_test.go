package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/uploaduser/internal/application"
	"github.com/JonMunkholm/uploaduser/internal/config"
	"github.com/JonMunkholm/uploaduser/internal/core"
	"github.com/JonMunkholm/uploaduser/internal/store"
	"github.com/JonMunkholm/uploaduser/internal/tracker"
)

const usersCSV = "username,firstname,lastname,email\n" +
	"alice,Alice,Smith,alice@example.com\n" +
	"bob,Bob,,bob@example.com\n"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080, RequestTimeout: 5 * time.Second},
		Upload: config.UploadConfig{
			MaxFileSize:   1 << 20,
			MaxConcurrent: 1,
			MaxWaitTime:   50 * time.Millisecond,
			Timeout:       time.Minute,
			Delimiter:     "comma",
			Encoding:      "utf-8",
		},
		Directory: config.DirectoryConfig{
			LocalHostID:  1,
			DefaultAuth:  "manual",
			EnabledAuths: []string{"email"},
			Languages:    []string{"en"},
		},
		Password: config.PasswordConfig{MinLength: 8, BcryptCost: 4},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

type testServer struct {
	*Server
	mem  *store.Memory
	site *application.Site
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) testServer {
	t.Helper()
	mem := store.NewMemory()
	site, err := application.NewSite(cfg, mem, mem)
	require.NoError(t, err)
	return testServer{Server: NewServer(site, cfg, opts...), mem: mem, site: site}
}

func (ts testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.Router().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, csv string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if csv != "" {
		fw, err := mw.CreateFormFile("file", "users.csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(csv))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", "upload-test")
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestUpload(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec := ts.do(uploadRequest(t, usersCSV, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[UploadResponse](t, rec)
	assert.Nil(t, resp.Error)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, 2, resp.Summary.Total)
	assert.Equal(t, 1, resp.Summary.Created)
	assert.Equal(t, 1, resp.Summary.Errors)
	assert.Equal(t, "http", resp.Summary.Initiator.Source)
	assert.Equal(t, "upload-test", resp.Summary.Initiator.UserAgent)

	require.Len(t, resp.Rows, 2)
	assert.Equal(t, 2, resp.Rows[0].Line)
	assert.Equal(t, "OK", resp.Rows[0].Result)
	assert.Equal(t, "NOK", resp.Rows[1].Result)
	require.NotEmpty(t, resp.Rows[1].Errors)
	assert.Equal(t, core.CodeMissingField, resp.Rows[1].Errors[0].Code)

	rec2, err := ts.mem.Lookup(context.Background(), "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", rec2.Email())
}

func TestUpload_PolicyFields(t *testing.T) {
	ts := newTestServer(t, testConfig())
	ts.mem.Seed(&core.Record{
		Username: "alice",
		HostID:   1,
		Auth:     "manual",
		Fields:   map[string]string{"email": "alice@example.com", "firstname": "Alice", "lastname": "Smith"},
	})

	csv := "username;firstname;lastname;email\nalice;Alicia;Smith;alice@example.com\n"
	rec := ts.do(uploadRequest(t, csv, map[string]string{
		"mode":         "createorupdate",
		"updatemode":   "dataonly",
		"delimiter":    "semicolon",
		"default_city": "Oslo",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[UploadResponse](t, rec)
	assert.Equal(t, 1, resp.Summary.Updated)
	assert.Equal(t, "createorupdate", resp.Summary.Mode)

	got, err := ts.mem.Lookup(context.Background(), "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, "Alicia", got.Fields["firstname"])
}

func TestUpload_Errors(t *testing.T) {
	tests := []struct {
		name     string
		csv      string
		fields   map[string]string
		wantCode string
		status   int
	}{
		{"no file", "", nil, "FILE004", http.StatusBadRequest},
		{"bad mode", usersCSV, map[string]string{"mode": "sometimes"}, "RUN006", http.StatusBadRequest},
		{"bad flag", usersCSV, map[string]string{"allowdeletes": "maybe"}, "RUN006", http.StatusBadRequest},
		{"bad encoding", usersCSV, map[string]string{"encoding": "ebcdic"}, "FILE003", http.StatusBadRequest},
		{"duplicate header", "username,username\nalice,alice\n", nil, "FILE006", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, testConfig())
			rec := ts.do(uploadRequest(t, tt.csv, tt.fields))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestUpload_TooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxFileSize = 64
	ts := newTestServer(t, cfg)

	rec := ts.do(uploadRequest(t, usersCSV+strings.Repeat("carol,Carol,Doe,carol@example.com\n", 20), nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "FILE001", decode[ErrorResponse](t, rec).Code)
}

func TestUpload_RunInProgress(t *testing.T) {
	ts := newTestServer(t, testConfig())
	require.NoError(t, ts.site.Limiter.Acquire(context.Background()))
	defer ts.site.Limiter.Release()

	rec := ts.do(uploadRequest(t, usersCSV, nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RUN002", decode[ErrorResponse](t, rec).Code)
}

func TestUpload_AbortedRunKeepsReport(t *testing.T) {
	ts := newTestServer(t, testConfig())
	csv := "username,firstname,lastname,email\n" +
		"alice,Alice,Smith,alice@example.com\n" +
		"bob,Bob\n"

	rec := ts.do(uploadRequest(t, csv, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	resp := decode[UploadResponse](t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "FILE002", resp.Error.Code)
	assert.True(t, resp.Summary.Aborted)
	assert.Equal(t, 1, resp.Summary.Created)
}

func TestRuns(t *testing.T) {
	ts := newTestServer(t, testConfig())
	up := decode[UploadResponse](t, ts.do(uploadRequest(t, usersCSV, nil)))

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]core.Summary](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, up.RunID, runs[0].RunID)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/runs?aborted=true", nil))
	assert.Empty(t, decode[[]core.Summary](t, rec))

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/runs/"+up.RunID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[core.Summary](t, rec).Created)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RUN005", decode[ErrorResponse](t, rec).Code)
}

func TestUploadQueueStatus(t *testing.T) {
	ts := newTestServer(t, testConfig())
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/uploads/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[core.RunLimiterStatus](t, rec)
	assert.Equal(t, 1, st.MaxConcurrent)
	assert.Equal(t, 0, st.Active)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	ts := newTestServer(t, testConfig(), WithPinger(fakePinger{}))
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Database)

	ts = newTestServer(t, testConfig(), WithPinger(fakePinger{err: errors.New("connection refused")}))
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := testConfig()
	ts := newTestServer(t, cfg, WithMetrics(reg))
	ts.site.Metrics = tracker.NewMetrics(reg)

	ts.do(uploadRequest(t, usersCSV, nil))

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "uploaduser_rows_total")
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Server.APIKeys = []string{"secret"}
	ts := newTestServer(t, cfg)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	req.Header.Set("X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, ts.do(req).Code)

	// Health stays open for probes.
	assert.Equal(t, http.StatusOK, ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t, testConfig())
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestPreview(t *testing.T) {
	ts := newTestServer(t, testConfig())

	req := uploadRequest(t, usersCSV, map[string]string{"rows": "1"})
	req.URL.Path = "/api/uploads/preview"
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	p := decode[core.Preview](t, rec)
	assert.Equal(t, 2, p.Summary.Total)
	assert.Equal(t, 1, p.Summary.Create)
	assert.Equal(t, 1, p.Summary.Errors)
	assert.Len(t, p.Rows, 1)
	assert.True(t, p.Truncated)
	assert.Empty(t, ts.mem.Users())
}
