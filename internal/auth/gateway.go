package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"kbdash/internal/apperrors"
	"kbdash/internal/logger"
	"kbdash/internal/models"
)

// Authenticator is the slice of the backend client the gateway needs.
type Authenticator interface {
	Login(ctx context.Context, req models.LoginRequest) (models.TokenResponse, error)
	Register(ctx context.Context, req models.RegisterRequest) (models.TokenResponse, error)
	Me(ctx context.Context, token string) (models.User, error)
}

// Gateway runs the login, register, restore and logout flows.
type Gateway struct {
	backend  Authenticator
	sessions *Sessions
	validate *validator.Validate
	log      *logger.Logger
}

// NewGateway wires a gateway to the backend and the session holder.
func NewGateway(backend Authenticator, sessions *Sessions, log *logger.Logger) *Gateway {
	if log == nil {
		log = logger.NewNop()
	}
	return &Gateway{
		backend:  backend,
		sessions: sessions,
		validate: validator.New(),
		log:      log.With("component", "auth"),
	}
}

// Sessions exposes the session holder, e.g. as a token source.
func (g *Gateway) Sessions() *Sessions {
	return g.sessions
}

// Login authenticates and persists the resulting session.
func (g *Gateway) Login(ctx context.Context, username, password string) (models.Session, error) {
	req := models.LoginRequest{Username: strings.TrimSpace(username), Password: password}
	if err := g.check(req); err != nil {
		return models.Session{}, err
	}
	resp, err := g.backend.Login(ctx, req)
	if err != nil {
		return models.Session{}, g.describe(err, "login failed")
	}
	return g.establish(resp)
}

// Register creates an account and logs into it.
func (g *Gateway) Register(ctx context.Context, req models.RegisterRequest) (models.Session, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := g.check(req); err != nil {
		return models.Session{}, err
	}
	resp, err := g.backend.Register(ctx, req)
	if err != nil {
		return models.Session{}, g.describe(err, "registration failed")
	}
	return g.establish(resp)
}

// Restore revives a persisted session after validating its token with the
// backend. Any failure, including an unreachable backend, clears storage.
func (g *Gateway) Restore(ctx context.Context) (models.Session, bool, error) {
	token, _, ok, err := g.sessions.stored()
	if err != nil {
		g.log.Warn("stored session unreadable, clearing", "error", err)
		return models.Session{}, false, g.sessions.clear()
	}
	if !ok {
		return models.Session{}, false, nil
	}

	user, err := g.backend.Me(ctx, token)
	if err != nil {
		g.log.Info("stored session rejected, clearing", "error", err)
		if clearErr := g.sessions.clear(); clearErr != nil {
			return models.Session{}, false, clearErr
		}
		return models.Session{}, false, nil
	}

	session := models.Session{Token: token, User: user}
	if err := g.sessions.set(session); err != nil {
		return models.Session{}, false, err
	}
	g.log.Info("session restored", "username", user.Username)
	return session, true, nil
}

// Logout forgets the session in memory and in storage.
func (g *Gateway) Logout() error {
	return g.sessions.clear()
}

// Current returns the active session, if any.
func (g *Gateway) Current() (models.Session, bool) {
	return g.sessions.Current()
}

// Token returns the current bearer token or "".
func (g *Gateway) Token() string {
	return g.sessions.Token()
}

func (g *Gateway) establish(resp models.TokenResponse) (models.Session, error) {
	session := models.Session{Token: resp.AccessToken, User: resp.UserInfo}
	if err := g.sessions.set(session); err != nil {
		return models.Session{}, err
	}
	g.log.Info("logged in", "username", session.User.Username)
	return session, nil
}

func (g *Gateway) check(req any) error {
	err := g.validate.Struct(req)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	details := make(map[string]interface{}, len(validationErrors))
	for _, fe := range validationErrors {
		details[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return apperrors.NewValidationError("invalid credentials form", details)
}

// describe keeps upstream messages (e.g. "username already exists") and
// replaces transport failures with a retry hint.
func (g *Gateway) describe(err error, action string) error {
	if apperrors.IsNetworkLevel(err) {
		return apperrors.NewNetworkError("network error, please try again later", err)
	}
	return fmt.Errorf("%s: %w", action, err)
}
