package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/amparolegal/amparo-backend/internal/http/response"
	"github.com/amparolegal/amparo-backend/internal/pkg/ctxutil"
	"github.com/amparolegal/amparo-backend/internal/pkg/logger"
	"github.com/amparolegal/amparo-backend/internal/platform/envutil"
	"github.com/amparolegal/amparo-backend/internal/rag"
	"github.com/amparolegal/amparo-backend/internal/services"
)

type SessionHandler struct {
	log          *logger.Logger
	sessions     services.ConversationService
	orchestrator *rag.Orchestrator
}

func NewSessionHandler(log *logger.Logger, sessions services.ConversationService, orchestrator *rag.Orchestrator) *SessionHandler {
	return &SessionHandler{
		log:          log.With("handler", "SessionHandler"),
		sessions:     sessions,
		orchestrator: orchestrator,
	}
}

type createSessionReq struct {
	FirstMessage string `json:"first_message"`
}

// POST /api/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	var req createSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	session, err := h.sessions.Create(c.Request.Context(), rd.UserID, req.FirstMessage)
	if err != nil {
		response.RespondFromError(c, "create_session_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"session": session})
}

// GET /api/sessions?limit=50&include_deleted=true
func (h *SessionHandler) ListSessions(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	limit := 50
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	includeDeleted := c.Query("include_deleted") == "true"
	sessions, err := h.sessions.List(c.Request.Context(), rd.UserID, rd.Role, includeDeleted, limit)
	if err != nil {
		response.RespondFromError(c, "list_sessions_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"sessions": sessions})
}

// GET /api/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	session, err := h.sessions.Get(c.Request.Context(), rd.UserID, rd.Role, sessionID)
	if err != nil {
		response.RespondFromError(c, "session_not_found", err)
		return
	}
	response.RespondOK(c, gin.H{"session": session})
}

// GET /api/sessions/:id/messages?limit=100
func (h *SessionHandler) ListMessages(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	limit := 100
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	msgs, err := h.sessions.Messages(c.Request.Context(), rd.UserID, rd.Role, sessionID, limit)
	if err != nil {
		response.RespondFromError(c, "list_messages_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"messages": msgs})
}

type renameSessionReq struct {
	Title string `json:"title"`
}

// PATCH /api/sessions/:id
func (h *SessionHandler) RenameSession(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	var req renameSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := h.sessions.Rename(c.Request.Context(), rd.UserID, rd.Role, sessionID, req.Title); err != nil {
		response.RespondFromError(c, "rename_session_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"renamed": true})
}

// DELETE /api/sessions/:id
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	if err := h.sessions.SoftDelete(c.Request.Context(), rd.UserID, rd.Role, sessionID); err != nil {
		response.RespondFromError(c, "delete_session_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": true})
}

type chatTurnReq struct {
	Message string         `json:"message"`
	Filters map[string]any `json:"filters,omitempty"`
	TopK    int            `json:"top_k,omitempty"`
	Model   string         `json:"model,omitempty"`
}

// POST /api/sessions/:id/chat
//
// Streams the turn as server-sent events: zero or more "token" events
// followed by exactly one "complete" or "error" event.
func (h *SessionHandler) ChatTurn(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	var req chatTurnReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		response.RespondError(c, http.StatusBadRequest, "empty_message", fmt.Errorf("message must not be empty"))
		return
	}

	if _, err := h.sessions.Get(c.Request.Context(), rd.UserID, rd.Role, sessionID); err != nil {
		response.RespondFromError(c, "session_not_found", err)
		return
	}
	historyLimit := envutil.GetEnvAsInt("CHAT_HISTORY_LIMIT", 30)
	history, err := h.sessions.History(c.Request.Context(), sessionID, historyLimit)
	if err != nil {
		response.RespondFromError(c, "history_load_failed", err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.RespondError(c, http.StatusInternalServerError, "streaming_unsupported", fmt.Errorf("response writer does not support streaming"))
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := h.orchestrator.HandleTurn(c.Request.Context(), rag.TurnInput{
		ConversationID: sessionID,
		UserID:         rd.UserID,
		UserText:       req.Message,
		History:        history,
		Filters:        req.Filters,
		TopK:           req.TopK,
		Model:          strings.TrimSpace(req.Model),
	})
	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			h.log.Error("event marshal failed", "error", err)
			continue
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Kind, payload)
		flusher.Flush()
	}
}
