package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbdash/internal/apperrors"
	"kbdash/internal/backend"
	"kbdash/internal/config"
	"kbdash/internal/models"
	"kbdash/internal/monitor"
	"kbdash/internal/storage"
)

type fakeAuth struct {
	loginResp models.TokenResponse
	loginErr  error
	meUser    models.User
	meErr     error
	meToken   string
	calls     int
}

func (f *fakeAuth) Login(_ context.Context, _ models.LoginRequest) (models.TokenResponse, error) {
	f.calls++
	return f.loginResp, f.loginErr
}

func (f *fakeAuth) Register(_ context.Context, req models.RegisterRequest) (models.TokenResponse, error) {
	f.calls++
	return models.TokenResponse{AccessToken: "reg-token", UserInfo: models.User{ID: 2, Username: req.Username, Email: req.Email}}, nil
}

func (f *fakeAuth) Me(_ context.Context, token string) (models.User, error) {
	f.calls++
	f.meToken = token
	return f.meUser, f.meErr
}

func newStore(t *testing.T) *storage.SessionStorage {
	t.Helper()
	store, err := storage.NewSessionStorage(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, err)
	return store
}

func TestLoginPersistsSession(t *testing.T) {
	store := newStore(t)
	fake := &fakeAuth{loginResp: models.TokenResponse{AccessToken: "tok-1", UserInfo: models.User{ID: 1, Username: "alice"}}}
	gw := NewGateway(fake, NewSessions(store), nil)

	session, err := gw.Login(context.Background(), " alice ", "secret")

	require.NoError(t, err)
	assert.Equal(t, "tok-1", session.Token)
	assert.Equal(t, "tok-1", gw.Sessions().Token())

	var token string
	ok, err := store.Get(storage.KeyAuthToken, &token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok-1", token)
}

func TestLoginValidatesBeforeNetwork(t *testing.T) {
	fake := &fakeAuth{}
	gw := NewGateway(fake, NewSessions(newStore(t)), nil)

	_, err := gw.Login(context.Background(), "", "")

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ValidationError))
	assert.Zero(t, fake.calls)
}

func TestLoginKeepsServerMessage(t *testing.T) {
	fake := &fakeAuth{loginErr: apperrors.NewUpstreamError(http.StatusUnauthorized, "wrong username or password")}
	gw := NewGateway(fake, NewSessions(newStore(t)), nil)

	_, err := gw.Login(context.Background(), "alice", "bad")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong username or password")
	assert.Empty(t, gw.Sessions().Token())
}

func TestLoginNetworkFailureIsGeneric(t *testing.T) {
	fake := &fakeAuth{loginErr: apperrors.NewNetworkError("down", errors.New("refused"))}
	gw := NewGateway(fake, NewSessions(newStore(t)), nil)

	_, err := gw.Login(context.Background(), "alice", "pw")

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.NetworkError))
}

func TestRegisterValidatesEmail(t *testing.T) {
	fake := &fakeAuth{}
	gw := NewGateway(fake, NewSessions(newStore(t)), nil)

	_, err := gw.Register(context.Background(), models.RegisterRequest{Username: "bob", Email: "not-an-email", Password: "secret1"})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ValidationError, appErr.Type)
	assert.Equal(t, "email", appErr.Details["email"])
	assert.Zero(t, fake.calls)

	session, err := gw.Register(context.Background(), models.RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "reg-token", session.Token)
}

func TestRestoreReplaysStoredToken(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Set(storage.KeyAuthToken, "stored"))
	require.NoError(t, store.Set(storage.KeyUserInfo, models.User{ID: 1, Username: "old-name"}))
	fake := &fakeAuth{meUser: models.User{ID: 1, Username: "alice"}}
	gw := NewGateway(fake, NewSessions(store), nil)

	session, ok, err := gw.Restore(context.Background())

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "stored", fake.meToken)
	assert.Equal(t, "alice", session.User.Username)
	assert.Equal(t, "stored", gw.Sessions().Token())
}

func TestRestoreClearsRejectedToken(t *testing.T) {
	for _, meErr := range []error{
		apperrors.NewUpstreamError(http.StatusUnauthorized, "expired"),
		apperrors.NewNetworkError("down", nil),
	} {
		store := newStore(t)
		require.NoError(t, store.Set(storage.KeyAuthToken, "stored"))
		require.NoError(t, store.Set(storage.KeyUserInfo, models.User{ID: 1}))
		gw := NewGateway(&fakeAuth{meErr: meErr}, NewSessions(store), nil)

		_, ok, err := gw.Restore(context.Background())

		require.NoError(t, err)
		assert.False(t, ok)
		var token string
		found, err := store.Get(storage.KeyAuthToken, &token)
		require.NoError(t, err)
		assert.False(t, found)
	}
}

func TestRestoreWithoutStoredSession(t *testing.T) {
	fake := &fakeAuth{}
	gw := NewGateway(fake, NewSessions(newStore(t)), nil)

	_, ok, err := gw.Restore(context.Background())

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, fake.calls)
}

// End to end against a fake backend: the token from login is sent on the
// next /documents call, and nothing carries it after logout.
func TestLoginTokenFlowsToDocumentsUntilLogout(t *testing.T) {
	var documentAuth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			_, _ = w.Write([]byte(`{"access_token":"jwt-abc","token_type":"bearer","user_info":{"id":1,"username":"alice","email":"a@example.com"}}`))
		case "/documents":
			documentAuth = append(documentAuth, r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`[]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Backend.BaseURL = srv.URL
	mon := monitor.New(monitor.Options{BaseURL: srv.URL, ReprobeInterval: time.Hour})
	defer mon.Stop()

	sessions := NewSessions(newStore(t))
	client := backend.New(cfg, mon, sessions, nil)
	gw := NewGateway(client, sessions, nil)

	_, err := gw.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)

	_, err = client.Documents(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Bearer jwt-abc"}, documentAuth)

	require.NoError(t, gw.Logout())
	_, err = client.Documents(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.AuthorizationError))
	assert.Len(t, documentAuth, 1)
}

func TestSessionsLoadAdoptsStoredSessionWithoutNetwork(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Set(storage.KeyAuthToken, "tok-stored"))
	require.NoError(t, store.Set(storage.KeyUserInfo, models.User{ID: 5, Username: "lin"}))

	sessions := NewSessions(store)
	ok, err := sessions.Load()

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok-stored", sessions.Token())
	current, ok := sessions.Current()
	require.True(t, ok)
	assert.Equal(t, "lin", current.User.Username)
}

func TestSessionsLoadIgnoresPartialSession(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Set(storage.KeyAuthToken, "tok-only"))

	sessions := NewSessions(store)
	ok, err := sessions.Load()

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, sessions.Token())
}

func TestRestoreKeepsSessionWhenBackendSendsNaiveTimestamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/me" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"id":1,"username":"alice","email":"a@example.com","full_name":"Alice","created_at":"2024-05-01T12:34:56.123456"}`))
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Backend.BaseURL = srv.URL
	mon := monitor.New(monitor.Options{BaseURL: srv.URL, ReprobeInterval: time.Hour})
	defer mon.Stop()

	store := newStore(t)
	require.NoError(t, store.Set(storage.KeyAuthToken, "stored"))
	require.NoError(t, store.Set(storage.KeyUserInfo, models.User{ID: 1, Username: "alice"}))
	sessions := NewSessions(store)
	gw := NewGateway(backend.New(cfg, mon, sessions, nil), sessions, nil)

	session, ok, err := gw.Restore(context.Background())

	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, session.User.CreatedAt)
	assert.Equal(t, time.UTC, session.User.CreatedAt.Location())
	assert.Equal(t, "stored", sessions.Token())

	var token string
	found, err := store.Get(storage.KeyAuthToken, &token)
	require.NoError(t, err)
	assert.True(t, found)
}

type brokenStore struct {
	failKey string
	saved   map[string]any
}

func (b *brokenStore) Get(string, any) (bool, error) { return false, nil }

func (b *brokenStore) Set(key string, value any) error {
	if key == b.failKey {
		return errors.New("disk full")
	}
	if b.saved == nil {
		b.saved = map[string]any{}
	}
	b.saved[key] = value
	return nil
}

func (b *brokenStore) Delete(keys ...string) error {
	for _, k := range keys {
		delete(b.saved, k)
	}
	return nil
}

func TestLoginDoesNotInstallUnsavedSession(t *testing.T) {
	for _, key := range []string{storage.KeyAuthToken, storage.KeyUserInfo} {
		store := &brokenStore{failKey: key}
		fake := &fakeAuth{loginResp: models.TokenResponse{AccessToken: "tok-1", UserInfo: models.User{ID: 1, Username: "alice"}}}
		sessions := NewSessions(store)
		gw := NewGateway(fake, sessions, nil)

		_, err := gw.Login(context.Background(), "alice", "secret")

		require.Error(t, err, key)
		assert.Empty(t, sessions.Token(), key)
		_, ok := sessions.Current()
		assert.False(t, ok, key)
		assert.Empty(t, store.saved, key)
	}
}
