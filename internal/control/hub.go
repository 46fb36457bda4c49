package control

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// PeerRole is host (control authority) or student.
type PeerRole string

const (
	PeerRoleHost    PeerRole = "host"
	PeerRoleStudent PeerRole = "student"
)

// Peer represents a WebSocket connection subscribed to a group's
// control channel.
type Peer struct {
	GroupID string
	UserID  string
	Role    PeerRole
	Conn    *websocket.Conn
	Send    chan []byte
}

// Hub manages control-channel subscriptions and broadcasts envelopes
// per group. Delivery is at-most-once best-effort: a peer with a full
// send buffer drops the message rather than stalling the channel.
type Hub struct {
	mu         sync.RWMutex
	peers      map[string]map[*Peer]struct{} // groupID -> set of peers
	upgrader   websocket.Upgrader
	maxMsgSize int64
	log        *zap.Logger
}

// NewHub creates a control hub.
func NewHub(readBuf, writeBuf int, maxMessageSize int64, log *zap.Logger) *Hub {
	return &Hub{
		peers:      make(map[string]map[*Peer]struct{}),
		maxMsgSize: maxMessageSize,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuf,
			WriteBufferSize: writeBuf,
			// Allow all origins for dev; in prod set CheckOrigin.
		},
	}
}

// Register adds a peer to a group channel and returns a cleanup
// function.
func (h *Hub) Register(groupID, userID string, role PeerRole, conn *websocket.Conn) (*Peer, func()) {
	if h.maxMsgSize > 0 {
		conn.SetReadLimit(h.maxMsgSize)
	}
	p := &Peer{
		GroupID: groupID,
		UserID:  userID,
		Role:    role,
		Conn:    conn,
		Send:    make(chan []byte, 64),
	}
	h.mu.Lock()
	if h.peers[groupID] == nil {
		h.peers[groupID] = make(map[*Peer]struct{})
	}
	h.peers[groupID][p] = struct{}{}
	h.mu.Unlock()

	h.log.Info("peer subscribed",
		zap.String("group_id", groupID),
		zap.String("user_id", userID),
		zap.String("role", string(role)))

	cleanup := func() {
		h.unregister(groupID, p)
	}
	return p, cleanup
}

func (h *Hub) unregister(groupID string, p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.peers[groupID]; ok {
		if _, present := m[p]; !present {
			return
		}
		delete(m, p)
		if len(m) == 0 {
			delete(h.peers, groupID)
		}
	} else {
		return
	}
	close(p.Send)
	h.log.Info("peer unsubscribed",
		zap.String("group_id", groupID),
		zap.String("user_id", p.UserID))
}

// Broadcast sends an envelope to every peer in the group except the
// sender (self-echo suppression happens at the channel edge, and
// receivers guard again on SenderID).
func (h *Hub) Broadcast(groupID string, env Envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		h.log.Warn("broadcast marshal failed", zap.String("event", string(env.Event)), zap.Error(err))
		return
	}

	// The lock is held across the sends so an unregister cannot close
	// a Send channel mid-fanout; sends never block, so holding it is
	// cheap.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for p := range h.peers[groupID] {
		if p.UserID == env.SenderID {
			continue
		}
		select {
		case p.Send <- raw:
		default:
			h.log.Warn("peer send buffer full",
				zap.String("group_id", groupID),
				zap.String("user_id", p.UserID))
		}
	}
}

// SendTo delivers an envelope to a single user in the group.
func (h *Hub) SendTo(groupID, userID string, env Envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		h.log.Warn("send marshal failed", zap.String("event", string(env.Event)), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for p := range h.peers[groupID] {
		if p.UserID != userID {
			continue
		}
		select {
		case p.Send <- raw:
		default:
		}
	}
}

// CloseGroup disconnects every peer in the group after a final
// end-meeting envelope. The envelope rides the Send channel so the
// peer's write pump stays the only writer on the connection; closing
// Send lets the pump drain it and then close the socket.
func (h *Hub) CloseGroup(groupID, senderID string) {
	env, _ := NewEnvelope(EventEndMeeting, senderID, EndMeetingPayload{})
	raw, _ := json.Marshal(env)

	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.peers[groupID]
	if !ok {
		return
	}
	delete(h.peers, groupID)
	for p := range m {
		select {
		case p.Send <- raw:
		default:
		}
		close(p.Send)
	}
	h.log.Info("group channel closed", zap.String("group_id", groupID))
}

// Upgrader returns the WebSocket upgrader for HTTP handlers.
func (h *Hub) Upgrader() *websocket.Upgrader {
	return &h.upgrader
}

// PeerCount returns number of peers in a group.
func (h *Hub) PeerCount(groupID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers[groupID])
}
