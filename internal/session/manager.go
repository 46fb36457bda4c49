package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/peerloom/liveclass-service/internal/control"
	"github.com/peerloom/liveclass-service/internal/errs"
	"go.uber.org/zap"
)

// Notice is a user-visible refusal produced instead of applying an
// event. RequestSent tells the sender a media-request was forwarded to
// the host on their behalf.
type Notice struct {
	Message     string `json:"message"`
	RequestSent bool   `json:"request_sent"`
}

type group struct {
	state   *State
	batcher *Batcher
	cancel  context.CancelFunc
}

// Manager coordinates live groups: it owns per-group state, validates
// inbound control events against role and policy, and fans approved
// events out on the hub.
type Manager struct {
	mu     sync.Mutex
	groups map[string]*group

	hub           *control.Hub
	flushInterval time.Duration
	log           *zap.Logger
}

// NewManager creates a coordinator over the hub.
func NewManager(hub *control.Hub, flushInterval time.Duration, log *zap.Logger) *Manager {
	return &Manager{
		groups:        make(map[string]*group),
		hub:           hub,
		flushInterval: flushInterval,
		log:           log,
	}
}

// Open creates (or returns) the live state for a group and starts its
// whiteboard batch loop.
func (m *Manager) Open(groupID, hostID, hostName string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.groups[groupID]; ok {
		return g.state
	}
	st := NewState(groupID, hostID, hostName)
	ctx, cancel := context.WithCancel(context.Background())
	b := NewBatcher(m.flushInterval, func(senderID string, strokes []control.WhiteboardStroke) {
		env, err := control.NewEnvelope(control.EventWhiteboardBatch, senderID, control.WhiteboardBatchPayload{
			UserID:  senderID,
			Strokes: strokes,
		})
		if err != nil {
			m.log.Warn("whiteboard flush failed", zap.Error(err))
			return
		}
		m.hub.Broadcast(groupID, env)
	})
	go b.Run(ctx)
	m.groups[groupID] = &group{state: st, batcher: b, cancel: cancel}
	m.log.Info("group opened", zap.String("group_id", groupID), zap.String("host_id", hostID))
	return st
}

// Lookup returns the live state for a group.
func (m *Manager) Lookup(groupID string) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return nil, false
	}
	return g.state, true
}

// Close tears the group down: final end-meeting broadcast, all peers
// disconnected, batcher stopped.
func (m *Manager) Close(groupID, hostID string) {
	m.mu.Lock()
	g, ok := m.groups[groupID]
	if ok {
		delete(m.groups, groupID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	g.cancel()
	m.hub.CloseGroup(groupID, hostID)
	m.log.Info("group closed", zap.String("group_id", groupID))
}

// ApproveJoin grants transmit rights after admission approval and
// announces the promotion.
func (m *Manager) ApproveJoin(groupID, userID string) {
	st, ok := m.Lookup(groupID)
	if !ok {
		return
	}
	env, err := control.NewEnvelope(control.EventPromoteSpeaker, st.HostID(), control.PromotePayload{UserID: userID})
	if err != nil {
		return
	}
	if err := st.Apply(env); err != nil {
		m.log.Warn("promote failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	m.hub.Broadcast(groupID, env)
}

// Demote revokes transmit rights and announces it.
func (m *Manager) Demote(groupID, userID string) {
	st, ok := m.Lookup(groupID)
	if !ok {
		return
	}
	env, err := control.NewEnvelope(control.EventDemoteSpeaker, st.HostID(), control.PromotePayload{UserID: userID})
	if err != nil {
		return
	}
	if err := st.Apply(env); err != nil {
		return
	}
	m.hub.Broadcast(groupID, env)
}

// AttendanceCSV exports the attendance sheet for a group.
func (m *Manager) AttendanceCSV(groupID string) (string, bool) {
	st, ok := m.Lookup(groupID)
	if !ok {
		return "", false
	}
	return st.Attendance().CSV(st.HostID()), true
}

// HandleInbound validates and applies one event from a peer. The
// returned Notice, when non-nil, is sent back to the sender instead of
// broadcasting. ended reports that the host terminated the meeting.
func (m *Manager) HandleInbound(p *control.Peer, env control.Envelope) (notice *Notice, ended bool, err error) {
	st, ok := m.Lookup(p.GroupID)
	if !ok {
		return nil, false, errs.ErrSessionNotActive
	}

	// Sender identity is the connection's, never the frame's.
	env.SenderID = p.UserID

	if control.HostOnly(env.Event) && p.Role != control.PeerRoleHost {
		return &Notice{Message: "only host can perform this action"}, false, nil
	}

	if env.Event == control.EventEndMeeting {
		return nil, true, nil
	}

	applyErr := st.Apply(env)
	switch {
	case applyErr == nil:
	case errors.Is(applyErr, errs.ErrPresenterBusy):
		return &Notice{Message: "someone is already sharing their screen"}, false, nil
	case errors.Is(applyErr, errs.ErrMediaLocked):
		return m.convertToMediaRequest(st, p, env), false, nil
	default:
		return nil, false, applyErr
	}

	// Whiteboard strokes go through the batcher; everything else is
	// re-broadcast immediately.
	if env.Event == control.EventWhiteboardBatch {
		var wp control.WhiteboardBatchPayload
		if err := json.Unmarshal(env.Payload, &wp); err == nil {
			if b := m.batcherFor(p.GroupID); b != nil {
				b.Add(p.UserID, wp.Strokes)
			}
		}
		return nil, false, nil
	}

	m.hub.Broadcast(p.GroupID, env)
	return nil, false, nil
}

func (m *Manager) batcherFor(groupID string) *Batcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return nil
	}
	return g.batcher
}

// convertToMediaRequest turns a refused media toggle into a
// media-request addressed to the host, per the lock policy.
func (m *Manager) convertToMediaRequest(st *State, p *control.Peer, env control.Envelope) *Notice {
	mediaType := "mic"
	if env.Event == control.EventCamChange {
		mediaType = "cam"
	}
	if env.Event == control.EventScreenShareStarted {
		mediaType = "screen"
	}

	reqEnv, err := control.NewEnvelope(control.EventMediaRequest, p.UserID, control.MediaRequestPayload{
		GroupID:   p.GroupID,
		UserID:    p.UserID,
		MediaType: mediaType,
	})
	if err != nil {
		return &Notice{Message: "media is locked by host"}
	}
	if err := st.Apply(reqEnv); err != nil {
		m.log.Warn("record media request failed", zap.Error(err))
	}
	m.hub.SendTo(p.GroupID, st.HostID(), reqEnv)
	return &Notice{Message: "media is locked by host", RequestSent: true}
}

// GroupCount returns the number of live groups.
func (m *Manager) GroupCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.groups)
}
