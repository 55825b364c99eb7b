package dashboard

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"kbdash/internal/apperrors"
	"kbdash/internal/models"
)

// FileInput is one file picked for upload.
type FileInput struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// Overview is the document panel plus the status card. Each half degrades
// on its own: an empty list or the placeholder status, with the error text.
type Overview struct {
	Documents      []models.Document   `json:"documents"`
	Status         models.SystemStatus `json:"status"`
	DocumentsError string              `json:"documents_error,omitempty"`
	StatusError    string              `json:"status_error,omitempty"`
}

// Documents lists the user's documents.
func (s *Service) Documents(ctx context.Context) ([]models.Document, error) {
	if err := s.gate(); err != nil {
		return nil, err
	}
	return s.backend.Documents(ctx)
}

// Status returns the backend status snapshot.
func (s *Service) Status(ctx context.Context) (models.SystemStatus, error) {
	if err := s.gate(); err != nil {
		return models.PlaceholderStatus(), err
	}
	return s.backend.Status(ctx)
}

// Overview fetches documents and status concurrently.
func (s *Service) Overview(ctx context.Context) Overview {
	out := Overview{Documents: []models.Document{}, Status: models.PlaceholderStatus()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, err := s.Documents(gctx)
		if err != nil {
			s.log.Warn("document list unavailable", "error", err)
			out.DocumentsError = userMessage(err)
			return nil
		}
		out.Documents = docs
		return nil
	})
	g.Go(func() error {
		status, err := s.Status(gctx)
		if err != nil {
			s.log.Warn("status unavailable", "error", err)
			out.StatusError = userMessage(err)
			return nil
		}
		out.Status = status
		return nil
	})
	_ = g.Wait()
	return out
}

// MaxUploadBytes is the per-file size ceiling.
func (s *Service) MaxUploadBytes() int64 {
	return s.upload.MaxBytes
}

// ValidateUpload checks one file against the size ceiling and the allowed
// extensions without touching the network.
func (s *Service) ValidateUpload(name string, size int64) error {
	if size > s.upload.MaxBytes {
		return apperrors.NewValidationError(
			fmt.Sprintf("file %q exceeds the %s upload limit", filepath.Base(name), formatLimit(s.upload.MaxBytes)),
			map[string]interface{}{"file": filepath.Base(name), "size": size, "max_bytes": s.upload.MaxBytes},
		)
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range s.upload.AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return apperrors.NewValidationError(
		fmt.Sprintf("file %q has an unsupported type; allowed: %s", filepath.Base(name), strings.Join(s.upload.AllowedExtensions, ", ")),
		map[string]interface{}{"file": filepath.Base(name)},
	)
}

// Upload validates every file first, then uploads them one by one and
// stops at the first failure. Results of completed uploads are returned.
func (s *Service) Upload(ctx context.Context, files []FileInput) ([]models.UploadResult, error) {
	if len(files) == 0 {
		return nil, apperrors.NewValidationError("no files selected", nil)
	}
	for _, f := range files {
		if err := s.ValidateUpload(f.Name, f.Size); err != nil {
			return nil, err
		}
	}
	if err := s.gate(); err != nil {
		return nil, err
	}

	results := make([]models.UploadResult, 0, len(files))
	for _, f := range files {
		res, err := s.uploadOne(ctx, f)
		if err != nil {
			return results, fmt.Errorf("upload %s: %w", filepath.Base(f.Name), err)
		}
		s.log.Info("document uploaded", "file", filepath.Base(f.Name), "size", f.Size)
		results = append(results, res)
	}
	return results, nil
}

func (s *Service) uploadOne(ctx context.Context, f FileInput) (models.UploadResult, error) {
	rc, err := f.Open()
	if err != nil {
		return models.UploadResult{}, apperrors.NewInternalError("open file", err)
	}
	defer rc.Close()
	return s.backend.Upload(ctx, f.Name, rc)
}

// DeleteDocument removes a document.
func (s *Service) DeleteDocument(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperrors.NewValidationError("document id must be positive", nil)
	}
	if err := s.gate(); err != nil {
		return err
	}
	if err := s.backend.DeleteDocument(ctx, id); err != nil {
		return err
	}
	s.log.Info("document deleted", "id", id)
	return nil
}

func formatLimit(bytes int64) string {
	const mb = 1024 * 1024
	if bytes%mb == 0 {
		return fmt.Sprintf("%dMB", bytes/mb)
	}
	return fmt.Sprintf("%d bytes", bytes)
}

func userMessage(err error) string {
	if appErr, ok := asAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}
