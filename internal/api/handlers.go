package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Aniketchurihar/CardioGenie/internal/models"
)

// createConversationResponse is the payload returned when a conversation is
// opened: the minted id plus the engine's greeting.
type createConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	Greeting       string `json:"greeting"`
}

type messageRequest struct {
	Message string `json:"message"`
}

type abandonRequest struct {
	Reason string `json:"reason"`
}

// createConversationHandler handles POST /api/conversations.
func (s *Server) createConversationHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.createConversationHandler invoked", "method", r.Method, "path", r.URL.Path)

	conversationID := uuid.NewString()
	greeting, err := s.engine.StartConversation(r.Context(), conversationID)
	if err != nil {
		slog.Error("Server.createConversationHandler: failed to start conversation", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start conversation"))
		return
	}

	slog.Info("Conversation started", "conversationID", conversationID)
	writeJSONResponse(w, http.StatusCreated, models.Success(createConversationResponse{
		ConversationID: conversationID,
		Greeting:       greeting,
	}))
}

// messageHandler handles POST /api/conversations/{conversationID}/messages.
func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	conversationID := chi.URLParam(r, "conversationID")
	slog.Debug("Server.messageHandler invoked", "conversationID", conversationID)

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.messageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Message == "" {
		slog.Warn("Server.messageHandler: empty message", "conversationID", conversationID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Message is required"))
		return
	}

	action, err := s.engine.ProcessMessage(r.Context(), conversationID, req.Message)
	if err != nil {
		if errors.Is(err, models.ErrEmptyConversationID) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Conversation id is required"))
			return
		}
		slog.Error("Server.messageHandler: engine failed", "error", err, "conversationID", conversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(action))
}

// abandonHandler handles POST /api/conversations/{conversationID}/abandon.
// The transport calls this on an explicit cancel or an idle timeout.
func (s *Server) abandonHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	conversationID := chi.URLParam(r, "conversationID")
	slog.Debug("Server.abandonHandler invoked", "conversationID", conversationID)

	var req abandonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.abandonHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	action, err := s.engine.Abandon(r.Context(), conversationID, req.Reason)
	if err != nil {
		if errors.Is(err, models.ErrUnknownConversation) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
			return
		}
		slog.Error("Server.abandonHandler: engine failed", "error", err, "conversationID", conversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to abandon conversation"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(action))
}

// getConversationHandler handles GET /api/conversations/{conversationID}.
func (s *Server) getConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	slog.Debug("Server.getConversationHandler invoked", "conversationID", conversationID)

	record, err := s.engine.GetRecord(conversationID)
	if err != nil {
		if errors.Is(err, models.ErrUnknownConversation) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
			return
		}
		slog.Error("Server.getConversationHandler: load failed", "error", err, "conversationID", conversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load conversation"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(record))
}

// listConversationsHandler handles GET /api/conversations (admin view).
func (s *Server) listConversationsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.listConversationsHandler invoked")

	records, err := s.st.ListIntakeRecords()
	if err != nil {
		slog.Error("Server.listConversationsHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list conversations"))
		return
	}
	if records == nil {
		records = []models.IntakeRecord{}
	}

	writeJSONResponse(w, http.StatusOK, models.Success(records))
}

// symptomsHandler handles GET /api/symptoms.
func (s *Server) symptomsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.symptomsHandler invoked")
	writeJSONResponse(w, http.StatusOK, models.Success(s.catalog.Symptoms()))
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	records, err := s.st.ListIntakeRecords()
	if err != nil {
		slog.Error("Server.healthHandler: store check failed", "error", err)
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Store unavailable"))
		return
	}

	completed := 0
	for _, rec := range records {
		if rec.Status == models.StatusComplete {
			completed++
		}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"status":        "healthy",
		"symptoms":      s.catalog.Len(),
		"conversations": len(records),
		"completed":     completed,
	}))
}
