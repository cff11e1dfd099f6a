package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xaenox/frontdesk/internal/assistant"
	"github.com/xaenox/frontdesk/internal/connections"
	"github.com/xaenox/frontdesk/internal/knowledge"
	"github.com/xaenox/frontdesk/internal/models"
	"go.uber.org/zap"
)

type turnRequest struct {
	Text   string `json:"text"`
	UserID string `json:"userId"`
}

type turnResponse struct {
	Text string `json:"text"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		writeErrorString(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, turnResponse{Text: emptyTextPrompt})
		return
	}

	id, err := s.caller(r, strings.TrimSpace(req.UserID))
	if err != nil {
		if r.Header.Get("Authorization") == "" && !s.opts.RequireAuth {
			writeErrorString(w, http.StatusBadRequest, "userId is required")
			return
		}
		unauthorized(w)
		return
	}

	reply, err := s.assistant.Handle(r.Context(), assistant.Request{
		UserID:   id.UserID,
		TenantID: id.TenantID,
		Email:    id.Email,
		Name:     id.Name,
		Text:     req.Text,
	})
	switch {
	case errors.Is(err, assistant.ErrEmptyText):
		writeJSON(w, http.StatusBadRequest, turnResponse{Text: emptyTextPrompt})
		return
	case err != nil:
		s.logger.Error("Turn failed", zap.String("user_id", id.UserID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, turnResponse{Text: assistant.GenericFailure})
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{Text: reply.Text})
}

func (s *Server) handleConnectionStatus(w http.ResponseWriter, r *http.Request) {
	if s.connections == nil {
		unavailable(w, "connections are not configured")
		return
	}
	id, err := s.caller(r, r.URL.Query().Get("userId"))
	if err != nil {
		unauthorized(w)
		return
	}

	status, err := s.connections.Status(r.Context(), id.UserID)
	if err != nil {
		s.logger.Error("Failed to load connections", zap.String("user_id", id.UserID), zap.Error(err))
		writeErrorString(w, http.StatusInternalServerError, "failed to load connections")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleOAuthURL(w http.ResponseWriter, r *http.Request) {
	if s.connections == nil {
		unavailable(w, "connections are not configured")
		return
	}
	id, err := s.caller(r, r.URL.Query().Get("userId"))
	if err != nil {
		unauthorized(w)
		return
	}

	name := r.URL.Query().Get("provider")
	if name == "" {
		name = string(models.ProviderCalendar)
	}
	provider, ok := models.ParseProvider(name)
	if !ok {
		writeErrorString(w, http.StatusBadRequest, "unknown provider")
		return
	}

	url, err := s.connections.AuthURL(provider, id.UserID, id.TenantID)
	if err != nil {
		if errors.Is(err, connections.ErrUnknownProvider) {
			writeErrorString(w, http.StatusBadRequest, "provider is not configured")
			return
		}
		s.logger.Error("Failed to build auth URL", zap.Error(err))
		writeErrorString(w, http.StatusInternalServerError, "failed to build auth URL")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if s.connections == nil {
		unavailable(w, "connections are not configured")
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeErrorString(w, http.StatusBadRequest, "authorization was not granted")
		return
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		writeErrorString(w, http.StatusBadRequest, "code and state are required")
		return
	}

	conn, err := s.connections.Complete(r.Context(), code, state)
	if err != nil {
		switch {
		case errors.Is(err, connections.ErrInvalidState), errors.Is(err, connections.ErrUnknownProvider):
			writeErrorString(w, http.StatusBadRequest, "invalid state")
		case errors.Is(err, connections.ErrMissingRefreshToken):
			writeErrorString(w, http.StatusBadRequest, "no refresh token was granted; remove the app's access and connect again")
		default:
			s.logger.Error("OAuth callback failed", zap.Error(err))
			writeErrorString(w, http.StatusBadGateway, "failed to complete the connection")
		}
		return
	}

	if s.opts.OAuthRedirect != "" {
		http.Redirect(w, r, s.opts.OAuthRedirect+"?connected="+string(conn.Provider), http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": true, "provider": conn.Provider})
}

type uploadRequest struct {
	Text     string `json:"text"`
	Filename string `json:"filename"`
}

func (s *Server) handleKnowledgeUpload(w http.ResponseWriter, r *http.Request) {
	if s.knowledge == nil {
		unavailable(w, "knowledge is not configured")
		return
	}
	id, err := s.caller(r, r.URL.Query().Get("userId"))
	if err != nil {
		unauthorized(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	filename, content, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorString(w, http.StatusRequestEntityTooLarge, "upload is too large")
			return
		}
		writeErrorString(w, http.StatusBadRequest, "invalid upload")
		return
	}

	file, err := s.knowledge.Upload(r.Context(), id.UserID, filename, content)
	if err != nil {
		if errors.Is(err, knowledge.ErrEmptyUpload) {
			writeErrorString(w, http.StatusBadRequest, "upload is empty")
			return
		}
		s.logger.Error("Knowledge upload failed", zap.String("user_id", id.UserID), zap.Error(err))
		writeErrorString(w, http.StatusBadGateway, "upload failed")
		return
	}
	writeJSON(w, http.StatusCreated, file)
}

// readUpload accepts a multipart "file" field or a JSON {text, filename} body.
func readUpload(r *http.Request) (string, []byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		f, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, err
		}
		defer f.Close()
		content, err := io.ReadAll(f)
		return header.Filename, content, err
	}

	var req uploadRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		return "", nil, err
	}
	return req.Filename, []byte(req.Text), nil
}

func (s *Server) handleKnowledgeStatus(w http.ResponseWriter, r *http.Request) {
	if s.knowledge == nil {
		unavailable(w, "knowledge is not configured")
		return
	}
	id, err := s.caller(r, r.URL.Query().Get("userId"))
	if err != nil {
		unauthorized(w)
		return
	}

	record, err := s.knowledge.Status(r.Context(), id.UserID, isTrue(r.URL.Query().Get("refresh")))
	if err != nil {
		s.logger.Error("Knowledge status failed", zap.String("user_id", id.UserID), zap.Error(err))
		writeErrorString(w, http.StatusBadGateway, "failed to load knowledge status")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type settingsPayload struct {
	SchedulingPrompt     string `json:"schedulingPrompt"`
	InformationPrompt    string `json:"informationPrompt"`
	ClassificationPrompt string `json:"classificationPrompt"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	id, err := s.caller(r, r.URL.Query().Get("userId"))
	if err != nil {
		unauthorized(w)
		return
	}

	settings, err := s.settings.GetSettings(r.Context(), id.UserID)
	if err != nil {
		s.logger.Error("Failed to load settings", zap.String("user_id", id.UserID), zap.Error(err))
		writeErrorString(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	id, err := s.caller(r, r.URL.Query().Get("userId"))
	if err != nil {
		unauthorized(w)
		return
	}

	var payload settingsPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeErrorString(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	settings := &models.AgentSettings{
		UserID:               id.UserID,
		SchedulingPrompt:     strings.TrimSpace(payload.SchedulingPrompt),
		InformationPrompt:    strings.TrimSpace(payload.InformationPrompt),
		ClassificationPrompt: strings.TrimSpace(payload.ClassificationPrompt),
		UpdatedAt:            time.Now(),
	}
	if err := s.settings.SaveSettings(r.Context(), settings); err != nil {
		s.logger.Error("Failed to save settings", zap.String("user_id", id.UserID), zap.Error(err))
		writeErrorString(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
