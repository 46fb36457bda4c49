package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/peerloom/liveclass-service/internal/admission"
	"github.com/peerloom/liveclass-service/internal/control"
	"github.com/peerloom/liveclass-service/internal/policy"
	"github.com/peerloom/liveclass-service/internal/registry"
	"github.com/peerloom/liveclass-service/internal/rtc"
	"github.com/peerloom/liveclass-service/internal/session"
	"go.uber.org/zap"
)

// ControlWSHandler handles /ws/control/:group_id/:user_id.
//
// Students are held in an admission gate on the open socket: the
// server streams admission transitions until the watcher reaches a
// terminal state, and only an approved user is subscribed to the
// group's control channel.
type ControlWSHandler struct {
	hub    *control.Hub
	store  registry.Store
	feed   *registry.Feed
	mgr    *session.Manager
	tokens rtc.TokenProvider
	adm    admission.Config
	log    *zap.Logger
}

// NewControlWSHandler creates the control WebSocket handler.
func NewControlWSHandler(hub *control.Hub, store registry.Store, feed *registry.Feed, mgr *session.Manager, tokens rtc.TokenProvider, adm admission.Config, log *zap.Logger) *ControlWSHandler {
	return &ControlWSHandler{hub: hub, store: store, feed: feed, mgr: mgr, tokens: tokens, adm: adm, log: log}
}

// admissionFrame streams one watcher transition to the client.
type admissionFrame struct {
	Type string `json:"type"` // "admission"
	admission.Transition
}

// admittedFrame carries everything a client needs to enter the room:
// media credentials plus a full late-joiner state snapshot.
type admittedFrame struct {
	Type        string           `json:"type"` // "admitted"
	Role        control.PeerRole `json:"role"`
	Credentials *rtc.Credentials `json:"credentials,omitempty"`
	State       stateSnapshot    `json:"state"`
}

type noticeFrame struct {
	Type string `json:"type"` // "notice"
	session.Notice
}

// stateSnapshot is the late-joiner view of the live group.
type stateSnapshot struct {
	Policy            policy.SessionPolicy       `json:"policy"`
	Promoted          bool                       `json:"promoted"`
	Presenter         string                     `json:"presenter,omitempty"`
	SpotlightUserID   string                     `json:"spotlight_user_id,omitempty"`
	SpotlightActive   bool                       `json:"spotlight_active"`
	Hands             []session.RaisedHand       `json:"hands,omitempty"`
	WhiteboardActive  bool                       `json:"whiteboard_active"`
	WhiteboardStrokes []control.WhiteboardStroke `json:"whiteboard_strokes,omitempty"`
}

func snapshotFor(st *session.State, userID string) stateSnapshot {
	spotID, spotActive := st.Spotlight()
	return stateSnapshot{
		Policy:            st.Policy(),
		Promoted:          st.Promoted(userID),
		Presenter:         st.Presenter(),
		SpotlightUserID:   spotID,
		SpotlightActive:   spotActive,
		Hands:             st.Hands(),
		WhiteboardActive:  st.WhiteboardActive(),
		WhiteboardStrokes: st.WhiteboardStrokes(),
	}
}

// ServeWS upgrades the request and runs either the host fast path or
// the student admission gate.
// Path: /ws/control/:group_id/:user_id?name=Display+Name
func (h *ControlWSHandler) ServeWS(c *gin.Context) {
	groupID := c.Param("group_id")
	userID := c.Param("user_id")
	userName := c.Query("name")
	if groupID == "" || userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group_id and user_id required"})
		return
	}

	marker, err := h.store.Marker(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read session"})
		return
	}

	conn, err := h.hub.Upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if marker != nil && marker.HostID == userID {
		if userName == "" {
			userName = marker.HostName
		}
		st := h.mgr.Open(groupID, userID, userName)
		h.admit(c.Request.Context(), conn, groupID, userID, userName, control.PeerRoleHost, st)
		return
	}

	h.admissionGate(c.Request.Context(), conn, groupID, userID, userName)
}

// admissionGate runs the watcher and relays its transitions on the
// socket. An approved terminal transition hands the connection over to
// the live channel; any other terminal outcome closes it.
func (h *ControlWSHandler) admissionGate(ctx context.Context, conn *websocket.Conn, groupID, userID, userName string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan admission.Transition, 8)
	w := admission.NewWatcher(h.adm, h.store, h.feed, h.log, groupID, userID, userName)
	go func() { _ = w.Run(ctx, out) }()

	for tr := range out {
		if err := conn.WriteJSON(admissionFrame{Type: "admission", Transition: tr}); err != nil {
			return
		}
		if !tr.Terminal {
			continue
		}
		if tr.State != admission.StateApproved {
			return
		}
		marker, err := h.store.Marker(ctx, groupID)
		if err != nil || marker == nil {
			h.log.Warn("approved but no active marker, dropping connection",
				zap.String("group_id", groupID), zap.String("user_id", userID))
			return
		}
		st := h.mgr.Open(groupID, marker.HostID, marker.HostName)
		// Admission carries transmit rights: an approved student may
		// toggle media until a host lock or demotion says otherwise.
		h.mgr.ApproveJoin(groupID, userID)
		h.admit(ctx, conn, groupID, userID, userName, control.PeerRoleStudent, st)
		return
	}
}

func (h *ControlWSHandler) admit(ctx context.Context, conn *websocket.Conn, groupID, userID, userName string, role control.PeerRole, st *session.State) {
	creds, err := h.tokens.Token(ctx, groupID, userID, role == control.PeerRoleHost)
	if err != nil {
		h.log.Warn("token fetch aborted", zap.String("group_id", groupID), zap.Error(err))
		return
	}
	st.ObserveJoin(userID, userName)

	if err := conn.WriteJSON(admittedFrame{
		Type:        "admitted",
		Role:        role,
		Credentials: creds,
		State:       snapshotFor(st, userID),
	}); err != nil {
		return
	}

	p, cleanup := h.hub.Register(groupID, userID, role, conn)
	defer cleanup()

	go h.writePump(p)
	h.readPump(p)
}

func (h *ControlWSHandler) readPump(p *control.Peer) {
	defer func() {
		_ = p.Conn.Close()
	}()
	for {
		_, data, err := p.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("read error", zap.Error(err))
			}
			return
		}
		var env control.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.log.Debug("malformed control frame", zap.String("user_id", p.UserID), zap.Error(err))
			continue
		}

		notice, ended, err := h.mgr.HandleInbound(p, env)
		if err != nil {
			h.log.Debug("event dropped",
				zap.String("event", string(env.Event)),
				zap.String("user_id", p.UserID),
				zap.Error(err))
			continue
		}
		if notice != nil {
			h.sendNotice(p, *notice)
		}
		if ended {
			if err := h.store.EndSession(context.Background(), p.GroupID); err != nil {
				h.log.Warn("end session cleanup failed", zap.String("group_id", p.GroupID), zap.Error(err))
			}
			h.mgr.Close(p.GroupID, p.UserID)
			return
		}
	}
}

func (h *ControlWSHandler) writePump(p *control.Peer) {
	defer func() {
		_ = p.Conn.Close()
	}()
	for data := range p.Send {
		if err := p.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (h *ControlWSHandler) sendNotice(p *control.Peer, n session.Notice) {
	raw, err := json.Marshal(noticeFrame{Type: "notice", Notice: n})
	if err != nil {
		return
	}
	select {
	case p.Send <- raw:
	default:
	}
}
