// Package policy decides whether a participant may act on a medium.
// Decisions are pure functions of an explicit SessionPolicy value;
// callers broadcast the resulting state, they never mutate flags here.
package policy

// Medium is a controllable media kind.
type Medium int

const (
	MediumMic Medium = iota
	MediumCamera
	MediumScreen
	MediumWhiteboard
)

func (m Medium) String() string {
	switch m {
	case MediumMic:
		return "mic"
	case MediumCamera:
		return "cam"
	case MediumScreen:
		return "screen"
	case MediumWhiteboard:
		return "whiteboard"
	}
	return "unknown"
}

// SessionPolicy is the session-wide, host-controlled lock state.
type SessionPolicy struct {
	MediaControlLocked  bool
	HardMuteLock        bool
	CameraControlLocked bool
	HardCameraLock      bool
	ForceListenOnly     bool
	WhiteboardLocked    bool
}

// Actor describes the requester as the policy sees it.
type Actor struct {
	UserID   string
	IsHost   bool
	Promoted bool // member of the promoted-speakers set
}

// Decision is the policy verdict for a toggle attempt.
type Decision struct {
	Allowed bool
	// RequestHost is set on denials that should be converted into a
	// media-request event instead of a hard error.
	RequestHost bool
	Reason      string
}

var allow = Decision{Allowed: true}

// Decide applies the lock rules in priority order: host exemption,
// hard lock, listen-only without promotion, default permit.
func Decide(p SessionPolicy, m Medium, a Actor) Decision {
	if a.IsHost {
		return allow
	}
	switch m {
	case MediumMic:
		if p.MediaControlLocked || p.HardMuteLock {
			return Decision{RequestHost: true, Reason: "microphone is locked by host"}
		}
	case MediumCamera:
		if p.CameraControlLocked || p.HardCameraLock {
			return Decision{RequestHost: true, Reason: "camera is locked by host"}
		}
	case MediumWhiteboard:
		if p.WhiteboardLocked {
			return Decision{Reason: "whiteboard is locked by host"}
		}
		return allow
	case MediumScreen:
		// Screen share is arbitrated by the presenter claim, not here.
		return allow
	}
	if p.ForceListenOnly && !a.Promoted {
		return Decision{RequestHost: true, Reason: "listen-only mode, ask host for permission"}
	}
	return allow
}
