package session

import (
	"errors"
	"testing"
	"time"

	"github.com/peerloom/liveclass-service/internal/control"
	"github.com/peerloom/liveclass-service/internal/errs"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) (*Manager, *control.Hub) {
	t.Helper()
	hub := control.NewHub(1024, 1024, 65536, zap.NewNop())
	m := NewManager(hub, 10*time.Millisecond, zap.NewNop())
	return m, hub
}

func studentPeer(groupID, userID string) *control.Peer {
	return &control.Peer{GroupID: groupID, UserID: userID, Role: control.PeerRoleStudent, Send: make(chan []byte, 8)}
}

func hostPeer(groupID, userID string) *control.Peer {
	return &control.Peer{GroupID: groupID, UserID: userID, Role: control.PeerRoleHost, Send: make(chan []byte, 8)}
}

func TestHandleInboundUnknownGroup(t *testing.T) {
	m, _ := newTestManager(t)
	_, _, err := m.HandleInbound(studentPeer("nope", "s1"), control.Envelope{Event: control.EventHandRaise})
	if !errors.Is(err, errs.ErrSessionNotActive) {
		t.Fatalf("err = %v, want ErrSessionNotActive", err)
	}
}

func TestHandleInboundSpoofGuard(t *testing.T) {
	m, _ := newTestManager(t)
	st := m.Open("g1", "h1", "Host")

	// A student frame claiming to be the host keeps the connection's
	// identity, so the host-only gate still refuses it.
	env, _ := control.NewEnvelope(control.EventMuteAll, "h1", control.LockPayload{Locked: true})
	notice, _, err := m.HandleInbound(studentPeer("g1", "s1"), env)
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if notice == nil {
		t.Fatal("expected a refusal notice")
	}
	if st.Policy().MediaControlLocked {
		t.Fatal("spoofed host frame mutated policy")
	}
}

func TestHandleInboundHostModeration(t *testing.T) {
	m, _ := newTestManager(t)
	st := m.Open("g1", "h1", "Host")

	env, _ := control.NewEnvelope(control.EventMuteAll, "h1", control.LockPayload{Locked: true, HardLock: true})
	notice, ended, err := m.HandleInbound(hostPeer("g1", "h1"), env)
	if err != nil || notice != nil || ended {
		t.Fatalf("got (%v, %v, %v)", notice, ended, err)
	}
	if !st.Policy().HardMuteLock {
		t.Fatal("lock not applied")
	}
}

func TestHandleInboundEndMeeting(t *testing.T) {
	m, _ := newTestManager(t)
	m.Open("g1", "h1", "Host")

	env, _ := control.NewEnvelope(control.EventEndMeeting, "h1", control.EndMeetingPayload{})
	_, ended, err := m.HandleInbound(hostPeer("g1", "h1"), env)
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if !ended {
		t.Fatal("end-meeting should report ended")
	}
}

func TestHandleInboundPresenterBusyNotice(t *testing.T) {
	m, _ := newTestManager(t)
	st := m.Open("g1", "h1", "Host")
	for _, id := range []string{"s1", "s2"} {
		approve, _ := control.NewEnvelope(control.EventScreenShareApproved, "h1", control.ShareDecisionPayload{StudentID: id})
		if _, _, err := m.HandleInbound(hostPeer("g1", "h1"), approve); err != nil {
			t.Fatalf("approve %s: %v", id, err)
		}
	}

	start1, _ := control.NewEnvelope(control.EventScreenShareStarted, "s1", control.ShareStatePayload{UserID: "s1"})
	if _, _, err := m.HandleInbound(studentPeer("g1", "s1"), start1); err != nil {
		t.Fatalf("first share: %v", err)
	}

	start2, _ := control.NewEnvelope(control.EventScreenShareStarted, "s2", control.ShareStatePayload{UserID: "s2"})
	notice, _, err := m.HandleInbound(studentPeer("g1", "s2"), start2)
	if err != nil {
		t.Fatalf("second share: %v", err)
	}
	if notice == nil || notice.RequestSent {
		t.Fatalf("notice = %+v, want plain busy notice", notice)
	}
	if st.Presenter() != "s1" {
		t.Fatal("presenter changed")
	}
}

func TestHandleInboundLockedMicBecomesRequest(t *testing.T) {
	m, _ := newTestManager(t)
	st := m.Open("g1", "h1", "Host")

	env, _ := control.NewEnvelope(control.EventMicChange, "s1", control.MediaStatePayload{UserID: "s1", IsMicOn: true})
	notice, _, err := m.HandleInbound(studentPeer("g1", "s1"), env)
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if notice == nil || !notice.RequestSent {
		t.Fatalf("notice = %+v, want request-forwarded notice", notice)
	}
	if st.MicOn("s1") {
		t.Fatal("locked mic must stay off")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	st1 := m.Open("g1", "h1", "Host")
	st2 := m.Open("g1", "h1", "Host")
	if st1 != st2 {
		t.Fatal("reopening a live group must return the same state")
	}
	if m.GroupCount() != 1 {
		t.Fatalf("groups = %d, want 1", m.GroupCount())
	}
}

func TestCloseRemovesGroup(t *testing.T) {
	m, _ := newTestManager(t)
	m.Open("g1", "h1", "Host")
	m.Close("g1", "h1")
	if _, ok := m.Lookup("g1"); ok {
		t.Fatal("group still live after close")
	}
	// Closing twice is safe.
	m.Close("g1", "h1")
}
