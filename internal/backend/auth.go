package backend

import (
	"context"
	"net/http"

	"kbdash/internal/apperrors"
	"kbdash/internal/models"
)

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (models.TokenResponse, error) {
	return c.issueToken(ctx, request{method: http.MethodPost, path: "/auth/login", body: req, description: "login"})
}

// Register creates an account and returns a bearer token for it.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (models.TokenResponse, error) {
	return c.issueToken(ctx, request{method: http.MethodPost, path: "/auth/register", body: req, description: "register"})
}

func (c *Client) issueToken(ctx context.Context, req request) (models.TokenResponse, error) {
	resp, err := run[models.TokenResponse](ctx, c, c.mutation, req)
	if err != nil {
		return models.TokenResponse{}, err
	}
	if resp.AccessToken == "" {
		return models.TokenResponse{}, apperrors.NewMalformedError(req.description+" response carries no access_token", nil)
	}
	return resp, nil
}

// Me validates token and returns the user it belongs to.
func (c *Client) Me(ctx context.Context, token string) (models.User, error) {
	if token == "" {
		return models.User{}, apperrors.NewAuthorizationError("not logged in")
	}
	return run[models.User](ctx, c, c.fetch, request{
		method:      http.MethodGet,
		path:        "/auth/me",
		auth:        authRequired,
		token:       token,
		description: "token validation",
	})
}
