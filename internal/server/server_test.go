package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbdash/internal/auth"
	"kbdash/internal/backend"
	"kbdash/internal/config"
	"kbdash/internal/dashboard"
	"kbdash/internal/models"
	"kbdash/internal/monitor"
	"kbdash/internal/storage"
)

type harness struct {
	api      *httptest.Server
	handler  http.Handler
	monitor  *monitor.Monitor
	upstream *http.ServeMux
	hits     *atomic.Int32
	healthy  *atomic.Bool
}

func newHarness(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()
	h := &harness{upstream: http.NewServeMux(), hits: &atomic.Int32{}, healthy: &atomic.Bool{}}
	h.healthy.Store(true)
	h.upstream.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !h.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	kb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			h.hits.Add(1)
		}
		h.upstream.ServeHTTP(w, r)
	}))
	t.Cleanup(kb.Close)

	cfg := config.DefaultConfig()
	cfg.Backend.BaseURL = kb.URL
	cfg.Retry.DelaySeconds = 0
	cfg.Retry.AttemptTimeoutSeconds = 1
	for _, fn := range mutate {
		fn(&cfg)
	}

	h.monitor = monitor.New(monitor.Options{BaseURL: kb.URL, ReprobeInterval: time.Hour})
	t.Cleanup(h.monitor.Stop)

	store, err := storage.NewSessionStorage(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, err)
	sessions := auth.NewSessions(store)
	client := backend.New(cfg, h.monitor, sessions, nil)

	srv := New("127.0.0.1:0", Dependencies{
		Monitor:   h.monitor,
		Gateway:   auth.NewGateway(client, sessions, nil),
		Dashboard: dashboard.NewService(client, h.monitor, cfg, nil),
	})
	h.handler = srv.Handler()
	h.api = httptest.NewServer(h.handler)
	t.Cleanup(h.api.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) (int, Response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.api.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	h.upstream.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok-9","token_type":"bearer","user_info":{"id":9,"username":"ada","email":"ada@example.com"}}`))
	})
	status, resp := h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "ada", "password": "secret"})
	require.Equal(t, http.StatusOK, status)
	require.True(t, resp.Success)
}

func TestIndexIsServed(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.api.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestConnectivityEndpoint(t *testing.T) {
	h := newHarness(t)
	h.monitor.Probe(context.Background())

	status, resp := h.do(t, http.MethodGet, "/api/connectivity", nil)

	require.Equal(t, http.StatusOK, status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "connected", data["state"])
	assert.NotEmpty(t, data["timeline"])
	availability := data["availability"].(map[string]any)
	assert.Equal(t, float64(1), availability["total_probes"])
}

func TestReconnectReturnsUnknownImmediately(t *testing.T) {
	h := newHarness(t)
	h.healthy.Store(false)
	h.monitor.Probe(context.Background())
	require.Equal(t, models.StateDisconnected, h.monitor.State())

	status, resp := h.do(t, http.MethodPost, "/api/connectivity/reconnect", nil)

	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "unknown", resp.Data.(map[string]any)["state"])
}

func TestLoginAndSession(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	status, resp := h.do(t, http.MethodGet, "/api/session", nil)

	require.Equal(t, http.StatusOK, status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["logged_in"])
	assert.Equal(t, "ada", data["user"].(map[string]any)["username"])

	status, _ = h.do(t, http.MethodDelete, "/api/session", nil)
	require.Equal(t, http.StatusOK, status)
	_, resp = h.do(t, http.MethodGet, "/api/session", nil)
	assert.Equal(t, false, resp.Data.(map[string]any)["logged_in"])
}

func TestLoginValidationError(t *testing.T) {
	h := newHarness(t)

	status, resp := h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": ""})

	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Type)
	assert.Equal(t, int32(0), h.hits.Load())
}

func TestDocumentsRequireSession(t *testing.T) {
	h := newHarness(t)

	status, resp := h.do(t, http.MethodGet, "/api/documents", nil)

	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "AUTHORIZATION_ERROR", resp.Error.Type)
	assert.Equal(t, int32(0), h.hits.Load())
}

func TestDocumentsAfterLogin(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	var gotAuth string
	h.upstream.HandleFunc("/documents", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[{"id":3,"filename":"x_faq.md","original_filename":"faq.md","file_size":120,"upload_time":"2024-05-01T10:00:00.000123"}]`))
	})

	status, resp := h.do(t, http.MethodGet, "/api/documents", nil)

	require.Equal(t, http.StatusOK, status)
	assert.Len(t, resp.Data.([]any), 1)
	assert.Equal(t, "Bearer tok-9", gotAuth)
}

func TestUpstreamErrorKeepsClientStatus(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.upstream.HandleFunc("/documents/42", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Document not found"}`))
	})

	status, resp := h.do(t, http.MethodDelete, "/api/documents/42", nil)

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "UPSTREAM_ERROR", resp.Error.Type)
	assert.Equal(t, "Document not found", resp.Error.Message)
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	before := h.hits.Load()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "tool.exe")
	require.NoError(t, err)
	_, _ = part.Write([]byte("MZ"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(h.api.URL+"/api/documents", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", out.Error.Type)
	assert.Equal(t, before, h.hits.Load())
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

func TestUploadStopsReadingOversizedBody(t *testing.T) {
	const limit = 4 << 10
	h := newHarness(t, func(cfg *config.Config) { cfg.Upload.MaxBytes = limit })
	h.login(t)
	before := h.hits.Load()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", "huge.pdf")
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		chunk := bytes.Repeat([]byte("x"), 32<<10)
		for i := 0; i < 2048; i++ {
			if _, err := part.Write(chunk); err != nil {
				return
			}
		}
		_ = mw.Close()
		_ = pw.Close()
	}()
	body := &countingReader{r: pr}
	defer pr.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var out Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", out.Error.Type)
	assert.Contains(t, out.Error.Message, "upload limit")
	assert.Less(t, body.n.Load(), int64(1<<20))
	assert.Equal(t, before, h.hits.Load())
}

func TestUploadSpoolsAndForwardsFiles(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	var received []string
	h.upstream.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		received = append(received, header.Filename+":"+string(content))
		_, _ = w.Write([]byte(`{"message":"ok","filename":"` + header.Filename + `"}`))
	})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "a.md")
	require.NoError(t, err)
	_, _ = part.Write([]byte("# A"))
	require.NoError(t, mw.WriteField("note", "ignored"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(h.api.URL+"/api/documents", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, []string{"a.md:# A"}, received)
}

func TestDisconnectedBackendIsUnavailable(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.healthy.Store(false)
	h.monitor.Probe(context.Background())

	status, resp := h.do(t, http.MethodPost, "/api/query", map[string]any{"query": "hello"})

	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "BACKEND_UNAVAILABLE", resp.Error.Type)
}

func TestInvalidPathID(t *testing.T) {
	h := newHarness(t)

	status, resp := h.do(t, http.MethodDelete, "/api/preferences/abc", nil)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Type)
}

func TestConnectivityFeedPushesTransitions(t *testing.T) {
	h := newHarness(t)
	wsURL := "ws" + strings.TrimPrefix(h.api.URL, "http") + "/api/connectivity/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first connectivityMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, eventTypeSnapshot, first.Type)
	assert.Equal(t, models.StateUnknown, first.Snapshot.State)

	h.monitor.Probe(context.Background())

	var next connectivityMessage
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, eventTypeState, next.Type)
	require.NotNil(t, next.Event)
	assert.Equal(t, models.StateConnected, next.Event.To)
}

func TestConnectivityFeedRejectsForeignOrigin(t *testing.T) {
	h := newHarness(t)
	wsURL := "ws" + strings.TrimPrefix(h.api.URL, "http") + "/api/connectivity/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": []string{"http://evil.example"}})

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
