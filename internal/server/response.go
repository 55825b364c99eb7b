package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"kbdash/internal/apperrors"
)

// Response is the envelope of every /api reply.
type Response struct {
	Success bool           `json:"success"`
	Data    interface{}    `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

type ErrorResponse struct {
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Handler is an http handler that can return errors.
type Handler func(w http.ResponseWriter, r *http.Request) error

// Middleware converts a Handler to a standard http.HandlerFunc.
func Middleware(h Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			WriteError(w, r, err)
		}
	}
}

// WriteData writes a successful envelope.
func WriteData(w http.ResponseWriter, r *http.Request, status int, data interface{}) error {
	render.Status(r, status)
	render.JSON(w, r, Response{Success: true, Data: data})
	return nil
}

// WriteError maps err onto a status code and an error envelope.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := &ErrorResponse{
		Type:    string(apperrors.InternalError),
		Message: "An unexpected error occurred",
	}

	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		body.Type = string(appErr.Type)
		body.Message = appErr.Message
		body.Details = appErr.Details
		status = statusFor(appErr)
	case errors.Is(err, context.Canceled):
		body.Message = "request cancelled"
		status = http.StatusServiceUnavailable
	}

	render.Status(r, status)
	render.JSON(w, r, Response{Success: false, Error: body})
}

func statusFor(e *apperrors.AppError) int {
	switch e.Type {
	case apperrors.ValidationError:
		return http.StatusBadRequest
	case apperrors.AuthorizationError:
		return http.StatusUnauthorized
	case apperrors.UnavailableError, apperrors.NetworkError:
		return http.StatusServiceUnavailable
	case apperrors.TimeoutError:
		return http.StatusGatewayTimeout
	case apperrors.UpstreamError:
		// Client errors from the backend keep their code, the rest are gateway errors.
		if e.StatusCode >= 400 && e.StatusCode < 500 {
			return e.StatusCode
		}
		return http.StatusBadGateway
	case apperrors.MalformedError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
