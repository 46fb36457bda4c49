package session

import (
	"sort"
	"sync"
	"time"

	"github.com/peerloom/liveclass-service/internal/control"
	"github.com/peerloom/liveclass-service/internal/errs"
	"github.com/peerloom/liveclass-service/internal/policy"
)

// RaisedHand is one entry of the raised-hands set.
type RaisedHand struct {
	UserID   string    `json:"userId"`
	UserName string    `json:"userName"`
	RaisedAt time.Time `json:"raisedAt"`
}

// ShareRequest is a pending screen-share request awaiting the host.
type ShareRequest struct {
	StudentID   string    `json:"studentId"`
	StudentName string    `json:"studentName"`
	RequestedAt time.Time `json:"requestedAt"`
}

// MediaRequest is a pending ask-host-to-unlock request.
type MediaRequest struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	MediaType string    `json:"mediaType"`
	At        time.Time `json:"at"`
}

type mediaState struct {
	micOn bool
	camOn bool
}

// State is the live control state of one group session. Every mutation
// arrives as a control event and is applied idempotently: replaying a
// delivered event, or receiving push and poll duplicates, must settle
// on the same state.
type State struct {
	mu sync.Mutex

	groupID string
	hostID  string

	policy    policy.SessionPolicy
	promoted  map[string]struct{}
	hands     map[string]RaisedHand
	presenter policy.Claim
	spotlight policy.Claim

	canPresent    map[string]struct{} // screen-share grants
	shareRequests map[string]ShareRequest
	mediaRequests []MediaRequest

	media map[string]mediaState

	whiteboardActive bool
	whiteboard       []control.WhiteboardStroke

	attendance *Attendance

	now func() time.Time
}

// NewState creates the live state for a group. The host starts
// present and exempt; everyone else transmits only after admission
// promotes them, so a user who never passed the gate is listen-only.
func NewState(groupID, hostID, hostName string) *State {
	s := &State{
		groupID:       groupID,
		hostID:        hostID,
		policy:        policy.SessionPolicy{ForceListenOnly: true},
		promoted:      make(map[string]struct{}),
		hands:         make(map[string]RaisedHand),
		canPresent:    make(map[string]struct{}),
		shareRequests: make(map[string]ShareRequest),
		media:         make(map[string]mediaState),
		attendance:    NewAttendance(),
		now:           time.Now,
	}
	s.attendance.Observe(hostID, hostName, s.now())
	return s
}

// Apply validates and applies one control event. Errors mean the event
// was refused and must not be broadcast: errs.ErrPresenterBusy for a
// lost presenter claim, errs.ErrMediaLocked for a lock violation.
func (s *State) Apply(env control.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return control.Dispatch(env, control.Handler{
		MuteAll: func(p control.LockPayload) error {
			s.policy.MediaControlLocked = p.Locked
			s.policy.HardMuteLock = p.HardLock
			// Locking force-disables every non-host mic.
			for uid, m := range s.media {
				if uid != s.hostID {
					m.micOn = false
					s.media[uid] = m
				}
			}
			return nil
		},
		UnmuteAll: func(p control.LockPayload) error {
			s.policy.MediaControlLocked = p.Locked
			s.policy.HardMuteLock = p.HardLock
			return nil
		},
		DisableCameras: func(p control.LockPayload) error {
			s.policy.CameraControlLocked = p.Locked
			s.policy.HardCameraLock = p.HardLock
			for uid, m := range s.media {
				if uid != s.hostID {
					m.camOn = false
					s.media[uid] = m
				}
			}
			return nil
		},
		EnableCameras: func(p control.LockPayload) error {
			s.policy.CameraControlLocked = p.Locked
			s.policy.HardCameraLock = p.HardLock
			return nil
		},
		Spotlight: func(p control.SpotlightPayload) error {
			if !p.Active {
				s.spotlight.ForceRelease()
				return nil
			}
			// Spotlight is a host broadcast: authoritative override.
			s.spotlight.ForceRelease()
			return s.spotlight.Acquire(p.SpotlightUserID, p.Immune)
		},
		HandRaise: func(p control.HandRaisePayload) error {
			// Last write wins per user; duplicates refresh the entry.
			s.hands[p.UserID] = RaisedHand{UserID: p.UserID, UserName: p.UserName, RaisedAt: s.now()}
			return nil
		},
		HandsClear: func(control.HandsClearPayload) error {
			s.hands = make(map[string]RaisedHand)
			return nil
		},
		HandLower: func(p control.HandLowerPayload) error {
			delete(s.hands, p.UserID) // no-op when absent
			return nil
		},
		ScreenShareRequest: func(p control.ShareRequestPayload) error {
			if _, dup := s.shareRequests[p.StudentID]; dup {
				return nil
			}
			s.shareRequests[p.StudentID] = ShareRequest{
				StudentID:   p.StudentID,
				StudentName: p.StudentName,
				RequestedAt: s.now(),
			}
			return nil
		},
		ScreenShareApproved: func(p control.ShareDecisionPayload) error {
			s.canPresent[p.StudentID] = struct{}{}
			delete(s.shareRequests, p.StudentID)
			return nil
		},
		ScreenShareRejected: func(p control.ShareDecisionPayload) error {
			delete(s.shareRequests, p.StudentID)
			return nil
		},
		ScreenShareStarted: func(p control.ShareStatePayload) error {
			if p.UserID != s.hostID {
				if _, ok := s.canPresent[p.UserID]; !ok {
					return errs.ErrMediaLocked
				}
			}
			if err := s.presenter.Acquire(p.UserID, false); err != nil {
				return err
			}
			s.attendance.Observe(p.UserID, p.UserName, s.now())
			return nil
		},
		ScreenShareStopped: func(p control.ShareStatePayload) error {
			s.presenter.Release(p.UserID) // keyed on asserted id, order-tolerant
			return nil
		},
		ForceStopShare: func(p control.ShareStatePayload) error {
			if s.presenter.Holder() == p.UserID {
				s.presenter.ForceRelease()
			}
			return nil
		},
		PromoteSpeaker: func(p control.PromotePayload) error {
			s.promoted[p.UserID] = struct{}{}
			return nil
		},
		DemoteSpeaker: func(p control.PromotePayload) error {
			delete(s.promoted, p.UserID)
			m := s.media[p.UserID]
			m.micOn = false
			m.camOn = false
			s.media[p.UserID] = m
			return nil
		},
		WhiteboardToggle: func(p control.WhiteboardTogglePayload) error {
			s.whiteboardActive = p.Active
			if p.Active {
				s.whiteboard = append(s.whiteboard[:0], p.Strokes...)
			}
			return nil
		},
		WhiteboardBatch: func(p control.WhiteboardBatchPayload) error {
			if !s.whiteboardActive {
				return nil
			}
			s.whiteboard = append(s.whiteboard, p.Strokes...)
			return nil
		},
		WhiteboardClear: func(p control.WhiteboardClearPayload) error {
			s.whiteboard = s.whiteboard[:0]
			return nil
		},
		MicChange: func(p control.MediaStatePayload) error {
			if p.IsMicOn {
				d := policy.Decide(s.policy, policy.MediumMic, s.actor(p.UserID))
				if !d.Allowed {
					return errs.ErrMediaLocked
				}
			}
			m := s.media[p.UserID]
			m.micOn = p.IsMicOn
			s.media[p.UserID] = m
			s.attendance.Observe(p.UserID, "", s.now())
			return nil
		},
		CamChange: func(p control.MediaStatePayload) error {
			if p.IsCameraOn {
				d := policy.Decide(s.policy, policy.MediumCamera, s.actor(p.UserID))
				if !d.Allowed {
					return errs.ErrMediaLocked
				}
			}
			m := s.media[p.UserID]
			m.camOn = p.IsCameraOn
			s.media[p.UserID] = m
			s.attendance.Observe(p.UserID, "", s.now())
			return nil
		},
		MediaRequest: func(p control.MediaRequestPayload) error {
			s.mediaRequests = append(s.mediaRequests, MediaRequest{
				UserID:    p.UserID,
				UserName:  p.UserName,
				MediaType: p.MediaType,
				At:        s.now(),
			})
			return nil
		},
		EndMeeting: func(control.EndMeetingPayload) error {
			return nil // teardown is handled by the coordinator
		},
	})
}

func (s *State) actor(userID string) policy.Actor {
	_, promoted := s.promoted[userID]
	return policy.Actor{UserID: userID, IsHost: userID == s.hostID, Promoted: promoted}
}

// Decide exposes the policy verdict for a toggle attempt without
// mutating state.
func (s *State) Decide(m policy.Medium, userID string) policy.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return policy.Decide(s.policy, m, s.actor(userID))
}

// HostID returns the session host.
func (s *State) HostID() string {
	return s.hostID
}

// Policy returns a copy of the current lock state.
func (s *State) Policy() policy.SessionPolicy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

// Promoted reports whether the user holds transmit rights.
func (s *State) Promoted(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.promoted[userID]
	return ok
}

// Presenter returns the current presenter id, empty when free.
func (s *State) Presenter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presenter.Holder()
}

// Spotlight returns the spotlighted user id and the immune flag.
func (s *State) Spotlight() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spotlight.Holder(), s.spotlight.Immune()
}

// Hands returns raised hands ordered by raise time.
func (s *State) Hands() []RaisedHand {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RaisedHand, 0, len(s.hands))
	for _, h := range s.hands {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RaisedAt.Before(out[j].RaisedAt) })
	return out
}

// ShareRequests returns pending screen-share requests ordered by time.
func (s *State) ShareRequests() []ShareRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ShareRequest, 0, len(s.shareRequests))
	for _, r := range s.shareRequests {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out
}

// MicOn reports the last broadcast mic state for the user.
func (s *State) MicOn(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.media[userID].micOn
}

// CamOn reports the last broadcast camera state for the user.
func (s *State) CamOn(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.media[userID].camOn
}

// CanPresent reports whether the user may claim the presenter slot.
func (s *State) CanPresent(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userID == s.hostID {
		return true
	}
	_, ok := s.canPresent[userID]
	return ok
}

// WhiteboardActive reports whether the shared surface is open.
func (s *State) WhiteboardActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.whiteboardActive
}

// WhiteboardStrokes returns a copy of the accumulated strokes.
func (s *State) WhiteboardStrokes() []control.WhiteboardStroke {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]control.WhiteboardStroke, len(s.whiteboard))
	copy(out, s.whiteboard)
	return out
}

// ObserveJoin records attendance for an admitted participant.
func (s *State) ObserveJoin(userID, userName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attendance.Observe(userID, userName, s.now())
}

// Attendance returns the tracker for export.
func (s *State) Attendance() *Attendance {
	return s.attendance
}
