package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-guard/internal/core/domain"
	"github.com/arklim/social-platform-guard/internal/transport/http/middleware"
	"github.com/arklim/social-platform-guard/internal/usecase"
)

// SessionHandler exposes endpoints for session inspection and termination.
type SessionHandler struct {
	sessions *usecase.SessionService
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(sessions *usecase.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// RegisterRoutes binds REST session management routes to the provided router group.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.GET("", h.ListSessions)
	r.DELETE("/others", h.TerminateOtherSessions)
	r.DELETE("/:session_id", h.TerminateSession)
	r.POST("/:session_id/touch", h.TouchSession)
}

// ListSessions godoc
// @Summary List sessions for the identified user
// @Description Retrieves sessions for the identified user with optional filtering.
// @Tags Sessions
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param active_only query bool false "When true (default) only active sessions are returned"
// @Param device_id query string false "Restrict to a single device"
// @Param limit query int false "Maximum number of sessions returned"
// @Success 200 {object} SessionListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session service unavailable"))
		return
	}

	userID, ok := middleware.GetUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "caller identity required"))
		return
	}

	activeOnly := true
	if raw := c.Query("active_only"); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			activeOnly = parsed
		}
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	filter := domain.SessionFilter{
		UserID:     userID,
		DeviceID:   strings.TrimSpace(c.Query("device_id")),
		ActiveOnly: activeOnly,
		Limit:      limit,
	}

	sessions, err := h.sessions.ListSessions(c.Request.Context(), filter)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	response := make([]SessionPayload, 0, len(sessions))
	for _, session := range sessions {
		response = append(response, newSessionPayload(session))
	}

	c.JSON(http.StatusOK, SessionListResponse{Sessions: response, Total: len(response)})
}

// TerminateOtherSessions godoc
// @Summary Terminate all other sessions
// @Description Deactivates every active session for the user except the one named by keep_session_id.
// @Tags Sessions
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param keep_session_id query string false "Session to keep active"
// @Success 200 {object} SessionBulkTerminateResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/sessions/others [delete]
func (h *SessionHandler) TerminateOtherSessions(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session service unavailable"))
		return
	}

	userID, ok := middleware.GetUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "caller identity required"))
		return
	}

	keepSessionID := strings.TrimSpace(c.Query("keep_session_id"))

	result, err := h.sessions.TerminateOthers(c.Request.Context(), userID, keepSessionID)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to terminate other sessions")
		return
	}

	c.JSON(http.StatusOK, SessionBulkTerminateResponse{TerminatedCount: result.Terminated})
}

// TerminateSession godoc
// @Summary Terminate a specific session
// @Description Deactivates a single session by identifier.
// @Tags Sessions
// @Produce json
// @Param session_id path string true "Session identifier"
// @Param reason query string false "Optional termination reason"
// @Success 204 "Session terminated"
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/sessions/{session_id} [delete]
func (h *SessionHandler) TerminateSession(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session service unavailable"))
		return
	}

	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session_id is required"))
		return
	}

	reason := strings.TrimSpace(c.Query("reason"))
	if err := h.sessions.Terminate(c.Request.Context(), sessionID, reason); err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrSessionNotFound, Status: http.StatusNotFound, Message: "session not found"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to terminate session")
		return
	}

	c.Status(http.StatusNoContent)
}

// TouchSession godoc
// @Summary Record session activity
// @Description Refreshes the last-active timestamp of a session.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param session_id path string true "Session identifier"
// @Param request body SessionTouchRequest false "Activity metadata"
// @Success 204 "Activity recorded"
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/sessions/{session_id}/touch [post]
func (h *SessionHandler) TouchSession(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session service unavailable"))
		return
	}

	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session_id is required"))
		return
	}

	var req SessionTouchRequest
	_ = c.ShouldBindJSON(&req)

	var ip *string
	if trimmed := strings.TrimSpace(req.IPAddress); trimmed != "" {
		ip = &trimmed
	}

	if err := h.sessions.Touch(c.Request.Context(), sessionID, ip); err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrSessionNotFound, Status: http.StatusNotFound, Message: "session not found"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to touch session")
		return
	}

	c.Status(http.StatusNoContent)
}
