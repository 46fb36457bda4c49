package control

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDispatchRoutesDecodedPayload(t *testing.T) {
	env, err := NewEnvelope(EventSpotlight, "h1", SpotlightPayload{
		Active:          true,
		SpotlightUserID: "s1",
		Immune:          true,
	})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	var got SpotlightPayload
	h := Handler{Spotlight: func(p SpotlightPayload) error {
		got = p
		return nil
	}}
	if err := Dispatch(env, h); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !got.Active || got.SpotlightUserID != "s1" || !got.Immune {
		t.Fatalf("payload = %+v", got)
	}
}

func TestDispatchUnknownEvent(t *testing.T) {
	err := Dispatch(Envelope{Event: "made-up-event"}, Handler{})
	if err == nil || !strings.Contains(err.Error(), "unknown event") {
		t.Fatalf("err = %v, want unknown event", err)
	}
}

func TestDispatchNilHandlerMember(t *testing.T) {
	env, _ := NewEnvelope(EventMuteAll, "h1", LockPayload{Locked: true})
	err := Dispatch(env, Handler{})
	if err == nil || !strings.Contains(err.Error(), "no handler") {
		t.Fatalf("err = %v, want no handler", err)
	}
}

func TestDispatchMalformedPayload(t *testing.T) {
	env := Envelope{Event: EventHandRaise, Payload: json.RawMessage(`{"userId": 42}`)}
	err := Dispatch(env, Handler{HandRaise: func(HandRaisePayload) error { return nil }})
	if err == nil {
		t.Fatal("expected decode error for mistyped field")
	}
}

func TestMediaStateFalseSurvivesRoundTrip(t *testing.T) {
	// A mic-off broadcast must keep isMicOn present and false.
	env, _ := NewEnvelope(EventMicChange, "s1", MediaStatePayload{UserID: "s1", IsMicOn: false, IsCameraOn: true})
	if !strings.Contains(string(env.Payload), `"isMicOn":false`) {
		t.Fatalf("payload dropped false field: %s", env.Payload)
	}
}

func TestHostOnlyCoversModeration(t *testing.T) {
	hostOnly := []EventType{
		EventMuteAll, EventUnmuteAll, EventDisableCameras, EventEnableCameras,
		EventSpotlight, EventHandsClear, EventScreenShareApproved,
		EventScreenShareRejected, EventForceStopShare, EventPromoteSpeaker,
		EventDemoteSpeaker, EventWhiteboardToggle, EventWhiteboardClear,
		EventEndMeeting,
	}
	for _, e := range hostOnly {
		if !HostOnly(e) {
			t.Errorf("%s should be host-only", e)
		}
	}
	open := []EventType{
		EventHandRaise, EventHandLower, EventScreenShareRequest,
		EventScreenShareStarted, EventScreenShareStopped,
		EventWhiteboardBatch, EventMicChange, EventCamChange, EventMediaRequest,
	}
	for _, e := range open {
		if HostOnly(e) {
			t.Errorf("%s should not be host-only", e)
		}
	}
}
