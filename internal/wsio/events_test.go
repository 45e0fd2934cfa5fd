package wsio

import (
	"encoding/json"
	"testing"

	"relay/internal/bus"
	"relay/internal/session"
)

func TestTranslateKnownEvents(t *testing.T) {
	cases := []struct {
		name      string
		evt       bus.Event
		wantType  string
		wantScope deliveryScope
	}{
		{"channel create", bus.Event{Name: "CHANNEL_CREATE"}, outTypeChannelCreated, scopeGlobal},
		{"message create", bus.Event{Name: "MESSAGE_CREATE"}, outTypeMessage, scopeChannelSubscribers},
		{"typing", bus.Event{Name: "TYPING_START"}, outTypeTyping, scopeChannelSubscribers},
		{
			"reaction added",
			bus.Event{Name: "MESSAGE_REACTION_TOGGLE", Payload: map[string]any{"added": true}},
			outTypeReactionAdded, scopeChannelSubscribers,
		},
		{
			"reaction removed",
			bus.Event{Name: "MESSAGE_REACTION_TOGGLE", Payload: map[string]any{"added": false}},
			outTypeReactionRemoved, scopeChannelSubscribers,
		},
		{
			"voice joined",
			bus.Event{Name: "VOICE_STATE_UPDATE", Payload: map[string]any{"transition": "joined"}},
			outTypeVoiceUserJoined, scopeGlobal,
		},
		{
			"voice left",
			bus.Event{Name: "VOICE_STATE_UPDATE", Payload: map[string]any{"transition": "left"}},
			outTypeVoiceUserLeft, scopeGlobal,
		},
		{
			"voice state updated",
			bus.Event{Name: "VOICE_STATE_UPDATE", Payload: map[string]any{"transition": "updated"}},
			outTypeVoiceStateUpdated, scopeGlobal,
		},
		{"screen share", bus.Event{Name: "SCREEN_SHARE_UPDATE"}, outTypeScreenShareUpdated, scopeGlobal},
		{"camera share", bus.Event{Name: "CAMERA_SHARE_UPDATE"}, outTypeCameraUpdated, scopeGlobal},
		{"user renamed", bus.Event{Name: "USER_RENAMED"}, outTypeUserRenamed, scopeGlobal},
		{"user avatar updated", bus.Event{Name: "USER_AVATAR_UPDATED"}, outTypeUserAvatarUpdated, scopeGlobal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame, scope, ok := translate(tc.evt)
			if !ok {
				t.Fatalf("expected translate to handle event %q", tc.evt.Name)
			}
			if frame.Type != tc.wantType {
				t.Fatalf("expected wire type %q, got %q", tc.wantType, frame.Type)
			}
			if scope != tc.wantScope {
				t.Fatalf("expected scope %v, got %v", tc.wantScope, scope)
			}
		})
	}
}

func TestTranslateUnknownEventsAreDropped(t *testing.T) {
	for _, name := range []string{"PRODUCER_CLOSED", "USER_MUTED", "SOMETHING_NOBODY_PUBLISHES"} {
		if _, _, ok := translate(bus.Event{Name: name}); ok {
			t.Fatalf("expected event %q to not be forwarded to clients", name)
		}
	}
}

func TestOnBusEventChannelScopeOnlyReachesSubscribedSessions(t *testing.T) {
	registry := session.NewRegistry()
	h := &Handler{
		sessions:        registry,
		channelSessions: make(map[string]map[string]struct{}),
		sessionChannel:  make(map[string]string),
	}

	memberSink := &fakeSink{}
	outsiderSink := &fakeSink{}
	registry.Register("sess-member", "user-1", memberSink)
	registry.Register("sess-outsider", "user-2", outsiderSink)
	h.joinChannel("sess-member", "chan-1")

	h.onBusEvent(bus.Channel("chan-1"), bus.Event{
		Name:    "MESSAGE_CREATE",
		Payload: map[string]any{"content": "hi"},
	})

	if len(memberSink.frames) != 1 {
		t.Fatalf("expected the joined session to receive 1 frame, got %d", len(memberSink.frames))
	}
	if len(outsiderSink.frames) != 0 {
		t.Fatalf("expected the non-member session to receive 0 frames, got %d", len(outsiderSink.frames))
	}

	var frame outboundFrame
	if err := json.Unmarshal(memberSink.frames[0], &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if frame.Type != outTypeMessage {
		t.Fatalf("expected type %q, got %q", outTypeMessage, frame.Type)
	}
}

func TestOnBusEventGlobalScopeReachesEverySession(t *testing.T) {
	registry := session.NewRegistry()
	h := &Handler{
		sessions:        registry,
		channelSessions: make(map[string]map[string]struct{}),
		sessionChannel:  make(map[string]string),
	}

	a := &fakeSink{}
	b := &fakeSink{}
	registry.Register("sess-a", "user-a", a)
	registry.Register("sess-b", "user-b", b)
	// Neither session has joined any channel — voice events still reach both.

	h.onBusEvent(bus.Channel("chan-1"), bus.Event{
		Name:    "VOICE_STATE_UPDATE",
		Payload: map[string]any{"transition": "joined"},
	})

	if len(a.frames) != 1 || len(b.frames) != 1 {
		t.Fatalf("expected both sessions to receive the global-scope event, got a=%d b=%d", len(a.frames), len(b.frames))
	}
}

func TestOnBusEventUnknownEventIsNotBroadcast(t *testing.T) {
	registry := session.NewRegistry()
	h := &Handler{
		sessions:        registry,
		channelSessions: make(map[string]map[string]struct{}),
		sessionChannel:  make(map[string]string),
	}

	sink := &fakeSink{}
	registry.Register("sess-a", "user-a", sink)

	h.onBusEvent(bus.Everyone(), bus.Event{Name: "PRODUCER_CLOSED"})

	if len(sink.frames) != 0 {
		t.Fatalf("expected no frame for an unforwarded event, got %d", len(sink.frames))
	}
}

// fakeSink is a minimal session.Sink for exercising Registry/Handler logic
// without a real websocket connection.
type fakeSink struct {
	frames [][]byte
	closed bool
}

func (f *fakeSink) Send(frame []byte) bool {
	if f.closed {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeSink) Close() { f.closed = true }
