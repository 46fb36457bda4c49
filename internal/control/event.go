package control

import (
	"encoding/json"
	"fmt"
)

// EventType enumerates every control-channel event. The set is closed:
// Decode rejects unknown names and Dispatch covers every member, so a
// new event kind cannot be half-wired.
type EventType string

const (
	EventMuteAll             EventType = "mute-all"
	EventUnmuteAll           EventType = "unmute-all"
	EventDisableCameras      EventType = "disable-cameras"
	EventEnableCameras       EventType = "enable-cameras"
	EventSpotlight           EventType = "spotlight"
	EventHandRaise           EventType = "hand-raise"
	EventHandLower           EventType = "hand-lower"
	EventHandsClear          EventType = "clear-all-hands"
	EventScreenShareRequest  EventType = "screen-share-request"
	EventScreenShareApproved EventType = "screen-share-approved"
	EventScreenShareRejected EventType = "screen-share-rejected"
	EventScreenShareStarted  EventType = "screen-share-started"
	EventScreenShareStopped  EventType = "screen-share-stopped"
	EventForceStopShare      EventType = "force-stop-screenshare"
	EventPromoteSpeaker      EventType = "promote-speaker"
	EventDemoteSpeaker       EventType = "demote-speaker"
	EventWhiteboardToggle    EventType = "whiteboard-toggle"
	EventWhiteboardBatch     EventType = "whiteboard-batch"
	EventWhiteboardClear     EventType = "whiteboard-clear"
	EventMicChange           EventType = "student-mic-change"
	EventCamChange           EventType = "cam-change"
	EventMediaRequest        EventType = "media-request"
	EventEndMeeting          EventType = "end-meeting-for-all"
)

// Envelope is the wire form of a control message.
type Envelope struct {
	Event    EventType       `json:"event"`
	SenderID string          `json:"sender_id"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Payload types. Field names follow the wire contract.

// LockPayload toggles a session-wide media lock.
type LockPayload struct {
	Locked   bool `json:"locked"`
	HardLock bool `json:"hardLock"`
}

// SpotlightPayload sets or clears the single spotlight slot.
type SpotlightPayload struct {
	Active          bool   `json:"active"`
	SpotlightUserID string `json:"spotlightUserId"`
	Immune          bool   `json:"immune"`
}

// HandRaisePayload announces a raised hand.
type HandRaisePayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// HandLowerPayload lowers a participant's hand.
type HandLowerPayload struct {
	UserID string `json:"userId"`
}

// HandsClearPayload has no fields; the host lowers every raised hand.
type HandsClearPayload struct{}

// ShareRequestPayload asks the host for screen-share permission.
type ShareRequestPayload struct {
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
	Timestamp   int64  `json:"timestamp"`
}

// ShareDecisionPayload carries the host's approve/reject verdict.
type ShareDecisionPayload struct {
	StudentID string `json:"studentId"`
}

// ShareStatePayload asserts the presenter slot for a user.
type ShareStatePayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// PromotePayload grants or revokes transmit capability.
type PromotePayload struct {
	UserID string `json:"userId"`
}

// WhiteboardStroke is one drawing command.
type WhiteboardStroke struct {
	FromX     float64 `json:"fromX"`
	FromY     float64 `json:"fromY"`
	ToX       float64 `json:"toX"`
	ToY       float64 `json:"toY"`
	Color     string  `json:"color"`
	LineWidth float64 `json:"lineWidth"`
	Tool      string  `json:"tool"`
}

// WhiteboardTogglePayload opens or closes the shared drawing surface,
// carrying current state so late subscribers render it.
type WhiteboardTogglePayload struct {
	UserID  string             `json:"userId"`
	Active  bool               `json:"active"`
	Strokes []WhiteboardStroke `json:"drawingCommands,omitempty"`
}

// WhiteboardBatchPayload is a flushed batch of strokes.
type WhiteboardBatchPayload struct {
	UserID  string             `json:"userId"`
	Strokes []WhiteboardStroke `json:"commands"`
}

// WhiteboardClearPayload wipes the drawing surface.
type WhiteboardClearPayload struct {
	UserID string `json:"userId"`
}

// MediaStatePayload is an informational mic/camera state broadcast.
type MediaStatePayload struct {
	UserID     string `json:"userId"`
	IsMicOn    bool   `json:"isMicOn"`
	IsCameraOn bool   `json:"isCameraOn"`
}

// MediaRequestPayload asks the host to unlock a medium for a user.
type MediaRequestPayload struct {
	GroupID   string `json:"roomId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	MediaType string `json:"mediaType"` // "mic" or "cam"
}

// EndMeetingPayload has no fields; the event name carries the intent.
type EndMeetingPayload struct{}

// NewEnvelope marshals a typed payload into an Envelope.
func NewEnvelope(event EventType, senderID string, payload interface{}) (Envelope, error) {
	env := Envelope{Event: event, SenderID: senderID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// Handler receives decoded control events. Every member must be set
// for Dispatch to be total; a nil member is reported as an error
// rather than silently skipped.
type Handler struct {
	MuteAll             func(LockPayload) error
	UnmuteAll           func(LockPayload) error
	DisableCameras      func(LockPayload) error
	EnableCameras       func(LockPayload) error
	Spotlight           func(SpotlightPayload) error
	HandRaise           func(HandRaisePayload) error
	HandLower           func(HandLowerPayload) error
	HandsClear          func(HandsClearPayload) error
	ScreenShareRequest  func(ShareRequestPayload) error
	ScreenShareApproved func(ShareDecisionPayload) error
	ScreenShareRejected func(ShareDecisionPayload) error
	ScreenShareStarted  func(ShareStatePayload) error
	ScreenShareStopped  func(ShareStatePayload) error
	ForceStopShare      func(ShareStatePayload) error
	PromoteSpeaker      func(PromotePayload) error
	DemoteSpeaker       func(PromotePayload) error
	WhiteboardToggle    func(WhiteboardTogglePayload) error
	WhiteboardBatch     func(WhiteboardBatchPayload) error
	WhiteboardClear     func(WhiteboardClearPayload) error
	MicChange           func(MediaStatePayload) error
	CamChange           func(MediaStatePayload) error
	MediaRequest        func(MediaRequestPayload) error
	EndMeeting          func(EndMeetingPayload) error
}

// Dispatch decodes the envelope payload and routes it to the matching
// handler member. Unknown event names and malformed payloads error.
func Dispatch(env Envelope, h Handler) error {
	switch env.Event {
	case EventMuteAll:
		return call(env, h.MuteAll)
	case EventUnmuteAll:
		return call(env, h.UnmuteAll)
	case EventDisableCameras:
		return call(env, h.DisableCameras)
	case EventEnableCameras:
		return call(env, h.EnableCameras)
	case EventSpotlight:
		return call(env, h.Spotlight)
	case EventHandRaise:
		return call(env, h.HandRaise)
	case EventHandLower:
		return call(env, h.HandLower)
	case EventHandsClear:
		return call(env, h.HandsClear)
	case EventScreenShareRequest:
		return call(env, h.ScreenShareRequest)
	case EventScreenShareApproved:
		return call(env, h.ScreenShareApproved)
	case EventScreenShareRejected:
		return call(env, h.ScreenShareRejected)
	case EventScreenShareStarted:
		return call(env, h.ScreenShareStarted)
	case EventScreenShareStopped:
		return call(env, h.ScreenShareStopped)
	case EventForceStopShare:
		return call(env, h.ForceStopShare)
	case EventPromoteSpeaker:
		return call(env, h.PromoteSpeaker)
	case EventDemoteSpeaker:
		return call(env, h.DemoteSpeaker)
	case EventWhiteboardToggle:
		return call(env, h.WhiteboardToggle)
	case EventWhiteboardBatch:
		return call(env, h.WhiteboardBatch)
	case EventWhiteboardClear:
		return call(env, h.WhiteboardClear)
	case EventMicChange:
		return call(env, h.MicChange)
	case EventCamChange:
		return call(env, h.CamChange)
	case EventMediaRequest:
		return call(env, h.MediaRequest)
	case EventEndMeeting:
		return call(env, h.EndMeeting)
	default:
		return fmt.Errorf("control: unknown event %q", env.Event)
	}
}

func call[P any](env Envelope, fn func(P) error) error {
	if fn == nil {
		return fmt.Errorf("control: no handler for %s", env.Event)
	}
	var p P
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("control: decode %s payload: %w", env.Event, err)
		}
	}
	return fn(p)
}

// HostOnly reports whether only the session host may send the event.
func HostOnly(e EventType) bool {
	switch e {
	case EventMuteAll, EventUnmuteAll, EventDisableCameras, EventEnableCameras,
		EventSpotlight, EventHandsClear, EventScreenShareApproved,
		EventScreenShareRejected, EventForceStopShare, EventPromoteSpeaker,
		EventDemoteSpeaker, EventWhiteboardToggle, EventWhiteboardClear,
		EventEndMeeting:
		return true
	}
	return false
}
