package backend

import (
	"context"
	"fmt"
	"net/http"

	"kbdash/internal/models"
)

// Models lists the answer model catalog.
func (c *Client) Models(ctx context.Context) ([]models.AIModel, error) {
	return run[[]models.AIModel](ctx, c, c.fetch, request{
		method: http.MethodGet, path: "/ai-models", auth: authRequired, description: "model catalog",
	})
}

// AddCustomModel registers a user supplied model.
func (c *Client) AddCustomModel(ctx context.Context, req models.CustomModelRequest) (models.AIModel, error) {
	return run[models.AIModel](ctx, c, c.mutation, request{
		method: http.MethodPost, path: "/ai-models/custom", auth: authRequired, body: req, description: "custom model create",
	})
}

// DeleteCustomModel removes a user supplied model.
func (c *Client) DeleteCustomModel(ctx context.Context, id int64) error {
	return exec(ctx, c, c.mutation, request{
		method: http.MethodDelete, path: fmt.Sprintf("/ai-models/custom/%d", id), auth: authRequired, description: "custom model delete",
	})
}

// Preferences lists the user's model preferences.
func (c *Client) Preferences(ctx context.Context) ([]models.ModelPreference, error) {
	return run[[]models.ModelPreference](ctx, c, c.fetch, request{
		method: http.MethodGet, path: "/user/model-preferences", auth: authRequired, description: "preference list",
	})
}

// CreatePreference stores credentials for a model.
func (c *Client) CreatePreference(ctx context.Context, req models.PreferenceRequest) (models.ModelPreference, error) {
	return run[models.ModelPreference](ctx, c, c.mutation, request{
		method: http.MethodPost, path: "/user/model-preferences", auth: authRequired, body: req, description: "preference create",
	})
}

// UpdatePreference replaces an existing preference.
func (c *Client) UpdatePreference(ctx context.Context, id int64, req models.PreferenceRequest) (models.ModelPreference, error) {
	return run[models.ModelPreference](ctx, c, c.mutation, request{
		method: http.MethodPut, path: fmt.Sprintf("/user/model-preferences/%d", id), auth: authRequired, body: req, description: "preference update",
	})
}

// DeletePreference removes a preference.
func (c *Client) DeletePreference(ctx context.Context, id int64) error {
	return exec(ctx, c, c.mutation, request{
		method: http.MethodDelete, path: fmt.Sprintf("/user/model-preferences/%d", id), auth: authRequired, description: "preference delete",
	})
}

// DefaultModel returns the user's default model.
func (c *Client) DefaultModel(ctx context.Context) (models.DefaultModel, error) {
	return run[models.DefaultModel](ctx, c, c.fetch, request{
		method: http.MethodGet, path: "/user/default-model", auth: authRequired, description: "default model",
	})
}
