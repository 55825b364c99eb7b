// Package dashboard implements the panels of the knowledge base dashboard
// on top of the backend client, gated by the connectivity monitor.
package dashboard

import (
	"context"
	"io"

	"github.com/go-playground/validator/v10"

	"kbdash/internal/apperrors"
	"kbdash/internal/config"
	"kbdash/internal/logger"
	"kbdash/internal/models"
)

// Backend is the set of backend calls the panels use.
type Backend interface {
	Documents(ctx context.Context) ([]models.Document, error)
	Status(ctx context.Context) (models.SystemStatus, error)
	Upload(ctx context.Context, filename string, content io.Reader) (models.UploadResult, error)
	DeleteDocument(ctx context.Context, id int64) error
	Query(ctx context.Context, req models.QueryRequest) (models.QueryResult, error)
	QueryWithSpeech(ctx context.Context, req models.QueryRequest) (models.QueryResult, error)
	TextToSpeech(ctx context.Context, req models.SpeechRequest) (models.SpeechResult, error)
	Voices(ctx context.Context) ([]models.Voice, error)
	Models(ctx context.Context) ([]models.AIModel, error)
	AddCustomModel(ctx context.Context, req models.CustomModelRequest) (models.AIModel, error)
	DeleteCustomModel(ctx context.Context, id int64) error
	Preferences(ctx context.Context) ([]models.ModelPreference, error)
	CreatePreference(ctx context.Context, req models.PreferenceRequest) (models.ModelPreference, error)
	UpdatePreference(ctx context.Context, id int64, req models.PreferenceRequest) (models.ModelPreference, error)
	DeletePreference(ctx context.Context, id int64) error
	DefaultModel(ctx context.Context) (models.DefaultModel, error)
}

// StateReader reports the current connectivity state.
type StateReader interface {
	State() models.ConnectionState
}

// Service backs the document, query, speech and settings panels.
type Service struct {
	backend  Backend
	conn     StateReader
	upload   config.Upload
	query    config.Query
	validate *validator.Validate
	log      *logger.Logger
}

// NewService builds the dashboard service.
func NewService(backend Backend, conn StateReader, cfg config.Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		backend:  backend,
		conn:     conn,
		upload:   cfg.Upload,
		query:    cfg.Query,
		validate: validator.New(),
		log:      log.With("component", "dashboard"),
	}
}

// gate fails fast while the backend is known to be down.
func (s *Service) gate() error {
	if s.conn.State() == models.StateDisconnected {
		return apperrors.NewUnavailableError("backend is unreachable; reconnect to retry")
	}
	return nil
}
