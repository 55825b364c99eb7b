package dashboard

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"kbdash/internal/apperrors"
	"kbdash/internal/models"
)

// Models lists the model catalog.
func (s *Service) Models(ctx context.Context) ([]models.AIModel, error) {
	if err := s.gate(); err != nil {
		return nil, err
	}
	return s.backend.Models(ctx)
}

// AddCustomModel registers a model after validating the form.
func (s *Service) AddCustomModel(ctx context.Context, req models.CustomModelRequest) (models.AIModel, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Provider = strings.TrimSpace(req.Provider)
	req.ModelID = strings.TrimSpace(req.ModelID)
	req.APIBaseURL = strings.TrimSpace(req.APIBaseURL)
	if err := s.check(req); err != nil {
		return models.AIModel{}, err
	}
	if err := s.gate(); err != nil {
		return models.AIModel{}, err
	}
	return s.backend.AddCustomModel(ctx, req)
}

// DeleteCustomModel removes a custom model.
func (s *Service) DeleteCustomModel(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperrors.NewValidationError("model id must be positive", nil)
	}
	if err := s.gate(); err != nil {
		return err
	}
	return s.backend.DeleteCustomModel(ctx, id)
}

// Preferences lists the user's model preferences.
func (s *Service) Preferences(ctx context.Context) ([]models.ModelPreference, error) {
	if err := s.gate(); err != nil {
		return nil, err
	}
	return s.backend.Preferences(ctx)
}

// SavePreference updates preference id when it is set and creates one otherwise.
func (s *Service) SavePreference(ctx context.Context, id int64, req models.PreferenceRequest) (models.ModelPreference, error) {
	if err := s.check(req); err != nil {
		return models.ModelPreference{}, err
	}
	if err := s.gate(); err != nil {
		return models.ModelPreference{}, err
	}
	if id > 0 {
		return s.backend.UpdatePreference(ctx, id, req)
	}
	return s.backend.CreatePreference(ctx, req)
}

// DeletePreference removes a preference.
func (s *Service) DeletePreference(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperrors.NewValidationError("preference id must be positive", nil)
	}
	if err := s.gate(); err != nil {
		return err
	}
	return s.backend.DeletePreference(ctx, id)
}

// DefaultModel returns the user's default model.
func (s *Service) DefaultModel(ctx context.Context) (models.DefaultModel, error) {
	if err := s.gate(); err != nil {
		return models.DefaultModel{}, err
	}
	return s.backend.DefaultModel(ctx)
}

func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
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
	return apperrors.NewValidationError("validation failed", details)
}
