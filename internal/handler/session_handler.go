package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/peerloom/liveclass-service/internal/errs"
	"github.com/peerloom/liveclass-service/internal/model"
	"github.com/peerloom/liveclass-service/internal/registry"
	"github.com/peerloom/liveclass-service/internal/session"
	"go.uber.org/zap"
)

// SessionHandler handles the session and admission REST API.
type SessionHandler struct {
	store     registry.Store
	mgr       *session.Manager
	wsBaseURL string
	roomPoll  time.Duration
	log       *zap.Logger
}

// NewSessionHandler creates a session handler. roomPoll is advertised
// to the host client as its waiting-room refresh interval.
func NewSessionHandler(store registry.Store, mgr *session.Manager, wsBaseURL string, roomPoll time.Duration, log *zap.Logger) *SessionHandler {
	return &SessionHandler{store: store, mgr: mgr, wsBaseURL: wsBaseURL, roomPoll: roomPoll, log: log}
}

// hostID pulls the acting host identity from query or header.
func hostID(c *gin.Context) string {
	if id := c.Query("host_id"); id != "" {
		return id
	}
	return c.GetHeader("X-Host-ID")
}

// requireHost verifies that the caller is the host of the group's
// active session. Writes the error response itself on failure.
func (h *SessionHandler) requireHost(c *gin.Context, groupID string) (string, bool) {
	id := hostID(c)
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "host_id required"})
		return "", false
	}
	marker, err := h.store.Marker(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read session"})
		return "", false
	}
	if marker == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not active"})
		return "", false
	}
	if marker.HostID != id {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the session host can do this"})
		return "", false
	}
	return id, true
}

// StartSession godoc
// POST /sessions
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req model.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	marker, restarted, err := h.store.StartSession(c.Request.Context(), req.GroupID, req.HostID, req.HostName)
	if err != nil {
		h.log.Error("start session failed", zap.String("group_id", req.GroupID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start session"})
		return
	}
	h.mgr.Open(req.GroupID, req.HostID, req.HostName)
	c.JSON(http.StatusCreated, model.StartSessionResponse{
		GroupID:    marker.GroupID,
		HostID:     marker.HostID,
		Status:     "active",
		WSURL:      h.wsURL(req.GroupID, req.HostID),
		Restarted:  restarted,
		RoomPollMS: h.roomPoll.Milliseconds(),
	})
}

// EndSession godoc
// DELETE /sessions/:group_id
func (h *SessionHandler) EndSession(c *gin.Context) {
	groupID := c.Param("group_id")
	host, ok := h.requireHost(c, groupID)
	if !ok {
		return
	}
	if err := h.store.EndSession(c.Request.Context(), groupID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end session"})
		return
	}
	h.mgr.Close(groupID, host)
	c.Status(http.StatusNoContent)
}

// SessionStatus godoc
// GET /sessions/:group_id
func (h *SessionHandler) SessionStatus(c *gin.Context) {
	groupID := c.Param("group_id")
	marker, err := h.store.Marker(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read session"})
		return
	}
	c.JSON(http.StatusOK, model.SessionStatusResponse{
		GroupID:    groupID,
		HostActive: marker != nil,
		Marker:     marker,
	})
}

// SubmitRequest godoc
// POST /sessions/:group_id/requests
func (h *SessionHandler) SubmitRequest(c *gin.Context) {
	groupID := c.Param("group_id")
	var req model.SubmitRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	out, err := h.store.SubmitRequest(c.Request.Context(), groupID, req.UserID, req.UserName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit request"})
		return
	}
	c.JSON(http.StatusCreated, out)
}

// PendingRequests godoc
// GET /sessions/:group_id/requests
func (h *SessionHandler) PendingRequests(c *gin.Context) {
	groupID := c.Param("group_id")
	host, ok := h.requireHost(c, groupID)
	if !ok {
		return
	}
	requests, err := h.store.Pending(c.Request.Context(), groupID, host)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list requests"})
		return
	}
	c.JSON(http.StatusOK, model.PendingRequestsResponse{GroupID: groupID, Requests: requests})
}

// ApproveRequest godoc
// POST /sessions/:group_id/requests/:id/approve
func (h *SessionHandler) ApproveRequest(c *gin.Context) {
	groupID := c.Param("group_id")
	if _, ok := h.requireHost(c, groupID); !ok {
		return
	}
	req, err := h.store.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, errs.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to approve request"})
		return
	}
	h.mgr.ApproveJoin(groupID, req.UserID)
	c.JSON(http.StatusOK, req)
}

// RejectRequest godoc
// POST /sessions/:group_id/requests/:id/reject
func (h *SessionHandler) RejectRequest(c *gin.Context) {
	groupID := c.Param("group_id")
	if _, ok := h.requireHost(c, groupID); !ok {
		return
	}
	req, err := h.store.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, errs.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reject request"})
		return
	}
	c.JSON(http.StatusOK, req)
}

// ApproveAll godoc
// POST /sessions/:group_id/requests/approve-all
func (h *SessionHandler) ApproveAll(c *gin.Context) {
	groupID := c.Param("group_id")
	if _, ok := h.requireHost(c, groupID); !ok {
		return
	}
	approved, err := h.store.ApproveAll(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to approve requests"})
		return
	}
	for _, r := range approved {
		h.mgr.ApproveJoin(groupID, r.UserID)
	}
	c.JSON(http.StatusOK, gin.H{"approved": len(approved)})
}

// ResetRequests godoc
// POST /sessions/:group_id/requests/reset
func (h *SessionHandler) ResetRequests(c *gin.Context) {
	groupID := c.Param("group_id")
	host, ok := h.requireHost(c, groupID)
	if !ok {
		return
	}
	if err := h.store.ResetAll(c.Request.Context(), groupID, host); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset requests"})
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveParticipant godoc
// DELETE /sessions/:group_id/participants/:user_id
// Rejecting the row flips the participant's status watcher to the
// denial path; live transmit rights are revoked immediately.
func (h *SessionHandler) RemoveParticipant(c *gin.Context) {
	groupID := c.Param("group_id")
	userID := c.Param("user_id")
	if _, ok := h.requireHost(c, groupID); !ok {
		return
	}
	if err := h.store.RejectUser(c.Request.Context(), groupID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove participant"})
		return
	}
	h.mgr.Demote(groupID, userID)
	c.Status(http.StatusNoContent)
}

// Attendance godoc
// GET /sessions/:group_id/attendance
func (h *SessionHandler) Attendance(c *gin.Context) {
	groupID := c.Param("group_id")
	if _, ok := h.requireHost(c, groupID); !ok {
		return
	}
	csv, ok := h.mgr.AttendanceCSV(groupID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no live state for group"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=attendance-%s.csv", groupID))
	c.Data(http.StatusOK, "text/csv", []byte(csv))
}

func (h *SessionHandler) wsURL(groupID, userID string) string {
	if h.wsBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/ws/control/%s/%s", h.wsBaseURL, groupID, userID)
}
