package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/peerloom/liveclass-service/internal/admission"
	"github.com/peerloom/liveclass-service/internal/control"
	"github.com/peerloom/liveclass-service/internal/model"
	"github.com/peerloom/liveclass-service/internal/registry"
	"github.com/peerloom/liveclass-service/internal/rtc"
	"github.com/peerloom/liveclass-service/internal/session"
	"go.uber.org/zap"
)

type wsFixture struct {
	store *fakeStore
	feed  *registry.Feed
	mgr   *session.Manager
	srv   *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := newFakeStore()
	feed := registry.NewFeed()
	hub := control.NewHub(1024, 1024, 65536, zap.NewNop())
	mgr := session.NewManager(hub, 10*time.Millisecond, zap.NewNop())
	tokens := rtc.NewClient("", zap.NewNop())

	adm := admission.Config{
		HostPollInterval:   10 * time.Millisecond,
		StatusPollInterval: 10 * time.Millisecond,
		ReadRetries:        3,
		ReadRetryBackoff:   time.Millisecond,
		WelcomeDelay:       3500 * time.Millisecond,
		AutoJoinDelay:      2 * time.Second,
		RejectDelay:        2 * time.Second,
	}
	ws := NewControlWSHandler(hub, store, feed, mgr, tokens, adm, zap.NewNop())

	r := gin.New()
	r.GET("/ws/control/:group_id/:user_id", ws.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &wsFixture{store: store, feed: feed, mgr: mgr, srv: srv}
}

func (f *wsFixture) dial(t *testing.T, groupID, userID, name string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/control/" + groupID + "/" + userID
	if name != "" {
		url += "?name=" + name
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// stateKind captures the admission frame's string-valued "state" and
// ignores the admitted frame's "state", which is an object (stateSnapshot).
type stateKind string

func (s *stateKind) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = stateKind(str)
	}
	return nil
}

// frame is the union of every server-to-client message for decoding.
type frame struct {
	Type       string           `json:"type"`
	State      stateKind        `json:"state"`
	Terminal   bool             `json:"terminal"`
	Role       string           `json:"role"`
	Event      control.EventType `json:"event"`
	Credentials *rtc.Credentials `json:"credentials"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var fr frame
	if err := json.Unmarshal(data, &fr); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return fr
}

// readUntil drains frames until one matches, failing on timeout.
func readUntil(t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	for i := 0; i < 20; i++ {
		fr := readFrame(t, conn)
		if match(fr) {
			return fr
		}
	}
	t.Fatal("expected frame never arrived")
	return frame{}
}

func TestHostJoinsDirectly(t *testing.T) {
	f := newWSFixture(t)
	f.store.StartSession(context.Background(), "g1", "h1", "Teacher")
	f.mgr.Open("g1", "h1", "Teacher")

	conn := f.dial(t, "g1", "h1", "Teacher")
	fr := readFrame(t, conn)
	if fr.Type != "admitted" || fr.Role != string(control.PeerRoleHost) {
		t.Fatalf("frame = %+v, want host admitted", fr)
	}
	if fr.Credentials == nil || !fr.Credentials.Degraded {
		t.Fatalf("credentials = %+v, want degraded placeholder", fr.Credentials)
	}
}

func TestStudentAutoJoinsWhenHostActive(t *testing.T) {
	f := newWSFixture(t)
	f.store.StartSession(context.Background(), "g1", "h1", "Teacher")
	f.mgr.Open("g1", "h1", "Teacher")

	conn := f.dial(t, "g1", "s1", "Alice")
	readUntil(t, conn, func(fr frame) bool {
		return fr.Type == "admission" && string(fr.State) == string(admission.StateApproved)
	})
	fr := readUntil(t, conn, func(fr frame) bool { return fr.Type == "admitted" })
	if fr.Role != string(control.PeerRoleStudent) {
		t.Fatalf("role = %q", fr.Role)
	}

	// The admitted student now receives control broadcasts.
	st, _ := f.mgr.Lookup("g1")
	if st.Attendance().Len() < 2 {
		t.Fatal("attendance should record the admitted student")
	}
}

func TestAdmittedStudentCanEnableMic(t *testing.T) {
	f := newWSFixture(t)
	f.store.StartSession(context.Background(), "g1", "h1", "Teacher")
	f.mgr.Open("g1", "h1", "Teacher")

	host := f.dial(t, "g1", "h1", "Teacher")
	readFrame(t, host) // admitted

	student := f.dial(t, "g1", "s1", "Alice")
	readUntil(t, student, func(fr frame) bool { return fr.Type == "admitted" })

	st, _ := f.mgr.Lookup("g1")
	if !st.Promoted("s1") {
		t.Fatal("admission should grant transmit rights")
	}

	// No host lock is active: the toggle must apply and broadcast, not
	// come back as a media-request.
	env, _ := control.NewEnvelope(control.EventMicChange, "s1", control.MediaStatePayload{UserID: "s1", IsMicOn: true})
	if err := student.WriteJSON(env); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, host, func(fr frame) bool { return fr.Event == control.EventMicChange })
	if !st.MicOn("s1") {
		t.Fatal("admitted student's mic toggle should apply")
	}
}

func TestStudentWaitsForApproval(t *testing.T) {
	f := newWSFixture(t)
	f.store.StartSession(context.Background(), "g1", "h1", "Teacher")
	f.mgr.Open("g1", "h1", "Teacher")
	f.store.add("g1", "s1", "Alice", model.StatusPending)

	conn := f.dial(t, "g1", "s1", "Alice")
	readUntil(t, conn, func(fr frame) bool {
		return fr.Type == "admission" && string(fr.State) == string(admission.StateRequestPending)
	})

	// Host approves; polling picks it up.
	req, _ := f.store.GetRequest(context.Background(), "g1", "s1")
	if _, err := f.store.Approve(context.Background(), req.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	readUntil(t, conn, func(fr frame) bool {
		return fr.Type == "admission" && string(fr.State) == string(admission.StateApproved) && fr.Terminal
	})
	readUntil(t, conn, func(fr frame) bool { return fr.Type == "admitted" })
}

func TestStudentRejectedWhilePending(t *testing.T) {
	f := newWSFixture(t)
	f.store.StartSession(context.Background(), "g1", "h1", "Teacher")
	f.mgr.Open("g1", "h1", "Teacher")
	f.store.add("g1", "s1", "Alice", model.StatusPending)

	conn := f.dial(t, "g1", "s1", "Alice")
	readUntil(t, conn, func(fr frame) bool {
		return fr.Type == "admission" && string(fr.State) == string(admission.StateRequestPending)
	})

	req, _ := f.store.GetRequest(context.Background(), "g1", "s1")
	if _, err := f.store.Reject(context.Background(), req.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}

	readUntil(t, conn, func(fr frame) bool {
		return fr.Type == "admission" && string(fr.State) == string(admission.StateRequestRejected) && fr.Terminal
	})
	// The server closes the socket after a terminal rejection.
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("socket should close after rejection")
	}
}

func TestEndMeetingTearsDownGroup(t *testing.T) {
	f := newWSFixture(t)
	f.store.StartSession(context.Background(), "g1", "h1", "Teacher")
	f.mgr.Open("g1", "h1", "Teacher")

	host := f.dial(t, "g1", "h1", "Teacher")
	readFrame(t, host) // admitted

	student := f.dial(t, "g1", "s1", "Alice")
	readUntil(t, student, func(fr frame) bool { return fr.Type == "admitted" })

	env, _ := control.NewEnvelope(control.EventEndMeeting, "h1", control.EndMeetingPayload{})
	if err := host.WriteJSON(env); err != nil {
		t.Fatalf("write: %v", err)
	}

	fr := readUntil(t, student, func(fr frame) bool { return fr.Event == control.EventEndMeeting })
	_ = fr
	if m, _ := f.store.Marker(context.Background(), "g1"); m != nil {
		t.Fatal("marker should be deleted on end-meeting")
	}
	if _, ok := f.mgr.Lookup("g1"); ok {
		t.Fatal("group should be closed")
	}
}
