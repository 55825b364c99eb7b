package backend

import (
	"context"
	"encoding/json"
	"net/http"

	"kbdash/internal/apperrors"
	"kbdash/internal/models"
)

// Query asks the knowledge base a question.
func (c *Client) Query(ctx context.Context, req models.QueryRequest) (models.QueryResult, error) {
	req.Voice = ""
	return run[models.QueryResult](ctx, c, c.query, request{
		method: http.MethodPost, path: "/query", auth: authRequired, body: req, description: "query",
	})
}

// QueryWithSpeech asks a question and has the answer synthesized.
func (c *Client) QueryWithSpeech(ctx context.Context, req models.QueryRequest) (models.QueryResult, error) {
	return run[models.QueryResult](ctx, c, c.query, request{
		method: http.MethodPost, path: "/query-with-speech", auth: authRequired, body: req, description: "spoken query",
	})
}

// TextToSpeech synthesizes text with the given voice.
func (c *Client) TextToSpeech(ctx context.Context, req models.SpeechRequest) (models.SpeechResult, error) {
	res, err := run[models.SpeechResult](ctx, c, c.query, request{
		method: http.MethodPost, path: "/text-to-speech", auth: authRequired, body: req, description: "text to speech",
	})
	if err != nil {
		return models.SpeechResult{}, err
	}
	if res.AudioURL == "" {
		return models.SpeechResult{}, apperrors.NewMalformedError("text to speech response carries no audio_url", nil)
	}
	return res, nil
}

// Voices lists the speech voices. Both a bare list and {"voices": [...]} are accepted.
func (c *Client) Voices(ctx context.Context) ([]models.Voice, error) {
	raw, err := run[json.RawMessage](ctx, c, c.fetch, request{
		method: http.MethodGet, path: "/voices", auth: authNone, description: "voice list",
	})
	if err != nil {
		return nil, err
	}

	var voices []models.Voice
	if err := json.Unmarshal(raw, &voices); err == nil {
		return voices, nil
	}
	var wrapped struct {
		Voices []models.Voice `json:"voices"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, apperrors.NewMalformedError("decode voice list response", err)
	}
	return wrapped.Voices, nil
}
