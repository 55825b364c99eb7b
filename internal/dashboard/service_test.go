package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbdash/internal/apperrors"
	"kbdash/internal/backend"
	"kbdash/internal/config"
	"kbdash/internal/models"
	"kbdash/internal/monitor"
)

type fixedToken string

func (f fixedToken) Token() string { return string(f) }

type fakeState struct {
	mu    sync.Mutex
	state models.ConnectionState
}

func (f *fakeState) State() models.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeState) set(s models.ConnectionState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

type fixture struct {
	svc  *Service
	conn *fakeState
	hits *atomic.Int32
	mux  *http.ServeMux
	cfg  config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{mux: http.NewServeMux(), hits: &atomic.Int32{}, conn: &fakeState{state: models.StateConnected}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		f.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	f.cfg = config.DefaultConfig()
	f.cfg.Backend.BaseURL = srv.URL
	f.cfg.Retry.DelaySeconds = 0
	f.cfg.Retry.AttemptTimeoutSeconds = 1

	mon := monitor.New(monitor.Options{BaseURL: srv.URL, ReprobeInterval: time.Hour})
	t.Cleanup(mon.Stop)
	client := backend.New(f.cfg, mon, fixedToken("tok"), nil)
	f.svc = NewService(client, f.conn, f.cfg, nil)
	return f
}

func fileOf(name, content string) FileInput {
	return FileInput{
		Name: name,
		Size: int64(len(content)),
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(content)), nil },
	}
}

func TestUploadRejectsOversizedFileLocally(t *testing.T) {
	f := newFixture(t)
	huge := FileInput{
		Name: "scan.pdf",
		Size: 600 * 1024 * 1024,
		Open: func() (io.ReadCloser, error) {
			t.Fatal("oversized file must not be opened")
			return nil, nil
		},
	}

	_, err := f.svc.Upload(context.Background(), []FileInput{huge})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ValidationError))
	assert.Contains(t, err.Error(), "500MB")
	assert.Equal(t, int32(0), f.hits.Load())
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Upload(context.Background(), []FileInput{fileOf("setup.exe", "MZ")})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ValidationError))
	assert.Equal(t, int32(0), f.hits.Load())
}

func TestUploadValidatesWholeBatchFirst(t *testing.T) {
	f := newFixture(t)
	f.mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	})

	_, err := f.svc.Upload(context.Background(), []FileInput{
		fileOf("notes.md", "# notes"),
		fileOf("archive.zip", "PK"),
	})

	require.Error(t, err)
	assert.Equal(t, int32(0), f.hits.Load())
}

func TestUploadStopsAtFirstFailure(t *testing.T) {
	f := newFixture(t)
	var names []string
	var mu sync.Mutex
	f.mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		_ = file.Close()
		mu.Lock()
		names = append(names, header.Filename)
		mu.Unlock()
		if header.Filename == "b.txt" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":"empty document"}`))
			return
		}
		_, _ = w.Write([]byte(`{"message":"uploaded","filename":"` + header.Filename + `"}`))
	})

	results, err := f.svc.Upload(context.Background(), []FileInput{
		fileOf("a.txt", "alpha"),
		fileOf("b.txt", "beta"),
		fileOf("c.txt", "gamma"),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty document")
	require.Len(t, results, 1)
	assert.Equal(t, "a.txt", results[0].Filename)
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)
}

func TestDisconnectedGateFailsFast(t *testing.T) {
	f := newFixture(t)
	f.conn.set(models.StateDisconnected)

	_, err := f.svc.Documents(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.UnavailableError))

	_, err = f.svc.Ask(context.Background(), "what is the refund policy?", 0)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.UnavailableError))
	assert.Equal(t, int32(0), f.hits.Load())
}

func TestOverviewDegradesPerPanel(t *testing.T) {
	f := newFixture(t)
	f.mux.HandleFunc("/documents", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"index offline"}`))
	})
	f.mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"running","documents_count":3,"model_status":"ready"}`))
	})

	out := f.svc.Overview(context.Background())

	assert.Empty(t, out.Documents)
	assert.NotNil(t, out.Documents)
	assert.Equal(t, "index offline", out.DocumentsError)
	assert.Equal(t, "running", out.Status.Status)
	assert.Equal(t, 3, out.Status.DocumentsCount)
	assert.Empty(t, out.StatusError)
}

func TestOverviewFallsBackToPlaceholderStatus(t *testing.T) {
	f := newFixture(t)
	f.conn.set(models.StateDisconnected)

	out := f.svc.Overview(context.Background())

	assert.Equal(t, models.PlaceholderStatus(), out.Status)
	assert.Empty(t, out.Documents)
	assert.NotEmpty(t, out.StatusError)
	assert.NotEmpty(t, out.DocumentsError)
}

func TestAskUsesDefaultTopK(t *testing.T) {
	f := newFixture(t)
	var got models.QueryRequest
	f.mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"answer":"30 days"}`))
	})

	res, err := f.svc.Ask(context.Background(), "  refund window?  ", 0)

	require.NoError(t, err)
	assert.Equal(t, "30 days", res.Answer)
	assert.Equal(t, "refund window?", got.Query)
	assert.Equal(t, 5, got.TopK)
}

func TestAskRejectsBlankQuestion(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Ask(context.Background(), "   ", 3)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ValidationError))
	assert.Equal(t, int32(0), f.hits.Load())
}

func TestSavePreferenceChoosesMethod(t *testing.T) {
	f := newFixture(t)
	var methods []string
	handler := func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method+" "+r.URL.Path)
		_, _ = w.Write([]byte(`{"id":7,"model_id":2,"api_key_set":true}`))
	}
	f.mux.HandleFunc("/user/model-preferences", handler)
	f.mux.HandleFunc("/user/model-preferences/7", handler)

	_, err := f.svc.SavePreference(context.Background(), 0, models.PreferenceRequest{ModelID: 2, APIKey: "sk"})
	require.NoError(t, err)
	_, err = f.svc.SavePreference(context.Background(), 7, models.PreferenceRequest{ModelID: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"POST /user/model-preferences", "PUT /user/model-preferences/7"}, methods)
}

func TestSavePreferenceValidatesModelID(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SavePreference(context.Background(), 0, models.PreferenceRequest{})

	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "required", appErr.Details["modelid"])
	assert.Equal(t, int32(0), f.hits.Load())
}

func TestCheckReportsNonStructInput(t *testing.T) {
	f := newFixture(t)

	err := f.svc.check(nil)

	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ValidationError, appErr.Type)
	assert.Empty(t, appErr.Details)
}

func TestAddCustomModelNamesInvalidFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AddCustomModel(context.Background(), models.CustomModelRequest{Name: "local", Provider: "ollama", ModelID: "llama3", APIBaseURL: "not a url"})

	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "url", appErr.Details["apibaseurl"])
	assert.Zero(t, f.hits.Load())
}

func TestFormatLimit(t *testing.T) {
	assert.Equal(t, "500MB", formatLimit(500*1024*1024))
	assert.Equal(t, "1000 bytes", formatLimit(1000))
}
