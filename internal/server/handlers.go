package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"kbdash/internal/apperrors"
	"kbdash/internal/dashboard"
	"kbdash/internal/models"
)

type sessionResponse struct {
	LoggedIn bool         `json:"logged_in"`
	User     *models.User `json:"user,omitempty"`
}

type askRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
	Voice string `json:"voice"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) error {
	session, ok := s.gateway.Current()
	if !ok {
		return WriteData(w, r, http.StatusOK, sessionResponse{})
	}
	return WriteData(w, r, http.StatusOK, sessionResponse{LoggedIn: true, User: &session.User})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) error {
	if err := s.gateway.Logout(); err != nil {
		return apperrors.NewInternalError("failed to clear session", err)
	}
	return WriteData(w, r, http.StatusOK, sessionResponse{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) error {
	var req models.LoginRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	session, err := s.gateway.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return WriteData(w, r, http.StatusOK, sessionResponse{LoggedIn: true, User: &session.User})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) error {
	var req models.RegisterRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	session, err := s.gateway.Register(r.Context(), req)
	if err != nil {
		return err
	}
	return WriteData(w, r, http.StatusCreated, sessionResponse{LoggedIn: true, User: &session.User})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) error {
	return WriteData(w, r, http.StatusOK, s.dashboard.Overview(r.Context()))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) error {
	status, err := s.dashboard.Status(r.Context())
	if err != nil {
		return err
	}
	return WriteData(w, r, http.StatusOK, status)
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) error {
	docs, err := s.dashboard.Documents(r.Context())
	if err != nil {
		return err
	}
	return WriteData(w, r, http.StatusOK, docs)
}

// handleUpload streams the multipart body part by part. Names are checked
// before a file is read and each file is spooled only up to the per-file
// ceiling, so an oversized body is rejected without reading the rest of it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) error {
	reader, err := r.MultipartReader()
	if err != nil {
		return apperrors.NewValidationError("expected a multipart form with field \"file\"", nil)
	}
	dir, err := os.MkdirTemp("", "kbdash-upload-")
	if err != nil {
		return apperrors.NewInternalError("failed to prepare upload", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	var files []dashboard.FileInput
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return apperrors.NewValidationError("malformed multipart body", nil)
		}
		if part.FormName() != "file" || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		file, err := s.spoolPart(dir, len(files), part)
		if err != nil {
			return err
		}
		_ = part.Close()
		files = append(files, file)
	}

	results, err := s.dashboard.Upload(r.Context(), files)
	if err != nil {
		return err
	}
	return WriteData(w, r, http.StatusCreated, results)
}

func (s *Server) spoolPart(dir string, index int, part *multipart.Part) (dashboard.FileInput, error) {
	name := part.FileName()
	if err := s.dashboard.ValidateUpload(name, 0); err != nil {
		return dashboard.FileInput{}, err
	}

	path := filepath.Join(dir, strconv.Itoa(index))
	out, err := os.Create(path)
	if err != nil {
		return dashboard.FileInput{}, apperrors.NewInternalError("failed to spool upload", err)
	}
	limit := s.dashboard.MaxUploadBytes()
	n, err := io.Copy(out, io.LimitReader(part, limit+1))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return dashboard.FileInput{}, apperrors.NewValidationError("failed to read uploaded file", map[string]interface{}{"file": name})
	}
	if err := s.dashboard.ValidateUpload(name, n); err != nil {
		return dashboard.FileInput{}, err
	}

	return dashboard.FileInput{
		Name: name,
		Size: n,
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := s.dashboard.DeleteDocument(r.Context(), id); err != nil {
		return err
	}
	return WriteData(w, r, http.StatusOK, map[string]int64{"deleted": id})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) error {
	var req askRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	res, err := s.dashboard.Ask(r.Context(), req.Query, req.TopK)
	if err != nil {
		return err
	}
	return WriteData(w, r, http.StatusOK, res)
}

func (s *Server) handleQueryWithSpeech(w http.ResponseWriter, r *http.Request) error {
	var req askRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	res, err := s.dashboard.AskAloud(r.Context(), req.Query, req.TopK, req.Voice)
	if err != nil {
		return err
	}
	return WriteData(w, r, http.StatusOK, res)
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) error {
	var req models.SpeechRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	res, err := s.dashboard.Speak(r.Context(), req.Text, req.Voice)
	if err != nil {
		return err
	}
	return WriteData(w, r, http.StatusOK, res)
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) error {
	voices, err := s.dashboard.Voices(r.Context())
	if err != nil {
		return err
	}
	return WriteData(w, r, http.StatusOK, voices)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) error {
	list, err := s.dashboard.Models(r.Context())
	if err != nil {
		return err
	}
	return WriteData(w, r, http.StatusOK, list)
}

func (s *Server) handleAddModel(w http.ResponseWriter, r *http.Request) error {
	var req models.CustomModelRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	model, err := s.dashboard.AddCustomModel(r.Context(), req)
	if err != nil {
		return err
	}
	return WriteData(w, r, http.StatusCreated, model)
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := s.dashboard.DeleteCustomModel(r.Context(), id); err != nil {
		return err
	}
	return WriteData(w, r, http.StatusOK, map[string]int64{"deleted": id})
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) error {
	prefs, err := s.dashboard.Preferences(r.Context())
	if err != nil {
		return err
	}
	return WriteData(w, r, http.StatusOK, prefs)
}

// handleSavePreference serves both POST / and PUT /{id}.
func (s *Server) handleSavePreference(w http.ResponseWriter, r *http.Request) error {
	var id int64
	if chi.URLParam(r, "id") != "" {
		parsed, err := pathID(r)
		if err != nil {
			return err
		}
		id = parsed
	}
	var req models.PreferenceRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	pref, err := s.dashboard.SavePreference(r.Context(), id, req)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if id == 0 {
		status = http.StatusCreated
	}
	return WriteData(w, r, status, pref)
}

func (s *Server) handleDeletePreference(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := s.dashboard.DeletePreference(r.Context(), id); err != nil {
		return err
	}
	return WriteData(w, r, http.StatusOK, map[string]int64{"deleted": id})
}

func (s *Server) handleDefaultModel(w http.ResponseWriter, r *http.Request) error {
	model, err := s.dashboard.DefaultModel(r.Context())
	if err != nil {
		return err
	}
	return WriteData(w, r, http.StatusOK, model)
}

func decode(r *http.Request, v interface{}) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid id", map[string]interface{}{"id": chi.URLParam(r, "id")})
	}
	return id, nil
}
