package models

// User is the identity record returned by the backend auth endpoints.
type User struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name,omitempty"`
	CreatedAt *Timestamp `json:"created_at,omitempty"`
}

// Session pairs an opaque bearer token with the user it belongs to.
type Session struct {
	Token string `json:"-"`
	User  User   `json:"user"`
}

// TokenResponse is the payload of /auth/login and /auth/register.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserInfo    User   `json:"user_info"`
}

// Document describes a file stored in the knowledge base.
type Document struct {
	ID               int64     `json:"id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	FileSize         int64     `json:"file_size"`
	UploadTime       Timestamp `json:"upload_time"`
}

// UploadResult is the backend acknowledgement of a single upload.
type UploadResult struct {
	Message    string `json:"message,omitempty"`
	Filename   string `json:"filename,omitempty"`
	DocumentID int64  `json:"document_id,omitempty"`
}

// ModelSummary describes the model currently answering for the user.
type ModelSummary struct {
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	ModelID   string `json:"model_id,omitempty"`
	APIKeySet bool   `json:"api_key_set"`
}

// SystemStatus is the backend status snapshot shown on the dashboard.
type SystemStatus struct {
	Status         string        `json:"status"`
	DocumentsCount int           `json:"documents_count"`
	IndexSize      int           `json:"index_size,omitempty"`
	ModelStatus    string        `json:"model_status"`
	MemoryUsage    string        `json:"memory_usage,omitempty"`
	CPUUsage       string        `json:"cpu_usage,omitempty"`
	CurrentModel   *ModelSummary `json:"current_model,omitempty"`
	AIEnabled      bool          `json:"ai_enabled"`
	Message        string        `json:"message,omitempty"`
}

// PlaceholderStatus is shown when the status endpoint cannot be read.
func PlaceholderStatus() SystemStatus {
	return SystemStatus{
		Status:         "unknown",
		DocumentsCount: 0,
		ModelStatus:    "unknown",
	}
}

// QueryRequest is the body of /query and /query-with-speech.
type QueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
	Voice string `json:"voice,omitempty"`
}

// QueryResult is the answer returned by the backend.
type QueryResult struct {
	Query          string           `json:"query,omitempty"`
	Answer         string           `json:"answer"`
	Sources        []map[string]any `json:"sources,omitempty"`
	ProcessingTime float64          `json:"processing_time,omitempty"`
	AudioURL       string           `json:"audio_url,omitempty"`
}

// SpeechRequest is the body of /text-to-speech.
type SpeechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// SpeechResult points at synthesized audio.
type SpeechResult struct {
	AudioURL string `json:"audio_url"`
}

// Voice is a speech synthesis voice offered by the backend.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language,omitempty"`
	Gender   string `json:"gender,omitempty"`
}

// AIModel is a catalog entry of answer models.
type AIModel struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Provider          string    `json:"provider"`
	ModelID           string    `json:"model_id"`
	APIBaseURL        string    `json:"api_base_url,omitempty"`
	Description       string    `json:"description,omitempty"`
	IsBuiltIn         bool      `json:"is_built_in"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         Timestamp `json:"created_at"`
	CreatedByUsername string    `json:"created_by_username,omitempty"`
}

// CustomModelRequest registers a user supplied model.
type CustomModelRequest struct {
	Name        string `json:"name" validate:"required"`
	Provider    string `json:"provider" validate:"required"`
	ModelID     string `json:"model_id" validate:"required"`
	APIBaseURL  string `json:"api_base_url" validate:"required,url"`
	Description string `json:"description"`
}

// ModelPreference stores per-user credentials for a model.
type ModelPreference struct {
	ID        int64     `json:"id"`
	ModelID   int64     `json:"model_id"`
	APIKeySet bool      `json:"api_key_set"`
	IsDefault bool      `json:"is_default"`
	CreatedAt Timestamp `json:"created_at"`
	Model     *AIModel  `json:"model,omitempty"`
}

// PreferenceRequest creates or updates a model preference.
type PreferenceRequest struct {
	ModelID   int64  `json:"model_id" validate:"required,gt=0"`
	APIKey    string `json:"api_key,omitempty"`
	IsDefault bool   `json:"is_default"`
}

// DefaultModel is the user's default answer model, if one is set.
type DefaultModel struct {
	ModelID   int64  `json:"model_id,omitempty"`
	ModelName string `json:"model_name,omitempty"`
	Provider  string `json:"provider,omitempty"`
	APIKeySet bool   `json:"api_key_set"`
	Message   string `json:"message,omitempty"`
}

// RegisterRequest is the body of /auth/register.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	FullName string `json:"full_name,omitempty"`
}

// LoginRequest is the body of /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}
