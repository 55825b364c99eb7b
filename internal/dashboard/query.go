package dashboard

import (
	"context"
	"errors"
	"strings"

	"kbdash/internal/apperrors"
	"kbdash/internal/models"
)

// Ask sends a question. topK <= 0 uses the configured default.
func (s *Service) Ask(ctx context.Context, question string, topK int) (models.QueryResult, error) {
	req, err := s.queryRequest(question, topK)
	if err != nil {
		return models.QueryResult{}, err
	}
	if err := s.gate(); err != nil {
		return models.QueryResult{}, err
	}
	return s.backend.Query(ctx, req)
}

// AskAloud sends a question and requests a spoken answer.
func (s *Service) AskAloud(ctx context.Context, question string, topK int, voice string) (models.QueryResult, error) {
	req, err := s.queryRequest(question, topK)
	if err != nil {
		return models.QueryResult{}, err
	}
	req.Voice = s.voice(voice)
	if err := s.gate(); err != nil {
		return models.QueryResult{}, err
	}
	return s.backend.QueryWithSpeech(ctx, req)
}

// Speak synthesizes text.
func (s *Service) Speak(ctx context.Context, text, voice string) (models.SpeechResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.SpeechResult{}, apperrors.NewValidationError("text must not be empty", nil)
	}
	if err := s.gate(); err != nil {
		return models.SpeechResult{}, err
	}
	return s.backend.TextToSpeech(ctx, models.SpeechRequest{Text: text, Voice: s.voice(voice)})
}

// Voices lists speech voices.
func (s *Service) Voices(ctx context.Context) ([]models.Voice, error) {
	if err := s.gate(); err != nil {
		return nil, err
	}
	voices, err := s.backend.Voices(ctx)
	if err != nil {
		return nil, err
	}
	if voices == nil {
		voices = []models.Voice{}
	}
	return voices, nil
}

func (s *Service) queryRequest(question string, topK int) (models.QueryRequest, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.QueryRequest{}, apperrors.NewValidationError("question must not be empty", nil)
	}
	if topK <= 0 {
		topK = s.query.TopK
	}
	return models.QueryRequest{Query: question, TopK: topK}, nil
}

func (s *Service) voice(voice string) string {
	if voice = strings.TrimSpace(voice); voice != "" {
		return voice
	}
	return s.query.Voice
}

func asAppError(err error) (*apperrors.AppError, bool) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
