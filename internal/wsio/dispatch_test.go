package wsio

import (
	"encoding/json"
	"testing"

	"relay/internal/apperr"
	"relay/internal/session"
)

func TestHandleFramePingRepliesWithPong(t *testing.T) {
	registry := session.NewRegistry()
	h := &Handler{
		sessions:        registry,
		channelSessions: make(map[string]map[string]struct{}),
		sessionChannel:  make(map[string]string),
	}
	sink := &fakeSink{}
	sess := registry.Register("sess-1", "user-1", sink)

	h.handleFrame(sess, &identity{UserID: "user-1"}, []byte(`{"message_type":"ping"}`))

	if len(sink.frames) != 1 {
		t.Fatalf("expected 1 frame in reply to ping, got %d", len(sink.frames))
	}
	var frame outboundFrame
	if err := json.Unmarshal(sink.frames[0], &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Type != outTypePong {
		t.Fatalf("expected pong, got %q", frame.Type)
	}
}

func TestHandleFrameJoinUpdatesSubscription(t *testing.T) {
	registry := session.NewRegistry()
	h := &Handler{
		sessions:        registry,
		channelSessions: make(map[string]map[string]struct{}),
		sessionChannel:  make(map[string]string),
	}
	sink := &fakeSink{}
	sess := registry.Register("sess-1", "user-1", sink)

	h.handleFrame(sess, &identity{UserID: "user-1"}, []byte(`{"message_type":"join","channel_id":"chan-1"}`))

	h.subMu.RLock()
	defer h.subMu.RUnlock()
	if _, ok := h.channelSessions["chan-1"]["sess-1"]; !ok {
		t.Fatal("expected join command to subscribe the session to chan-1")
	}
}

func TestHandleFrameMalformedJSONSendsError(t *testing.T) {
	registry := session.NewRegistry()
	h := &Handler{
		sessions:        registry,
		channelSessions: make(map[string]map[string]struct{}),
		sessionChannel:  make(map[string]string),
	}
	sink := &fakeSink{}
	sess := registry.Register("sess-1", "user-1", sink)

	h.handleFrame(sess, &identity{UserID: "user-1"}, []byte(`not json`))

	if len(sink.frames) != 1 {
		t.Fatalf("expected 1 error frame, got %d", len(sink.frames))
	}
	var frame outboundFrame
	if err := json.Unmarshal(sink.frames[0], &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Type != outTypeError {
		t.Fatalf("expected error frame, got %q", frame.Type)
	}
}

func TestHandleFrameUnknownMessageTypeSendsError(t *testing.T) {
	registry := session.NewRegistry()
	h := &Handler{
		sessions:        registry,
		channelSessions: make(map[string]map[string]struct{}),
		sessionChannel:  make(map[string]string),
	}
	sink := &fakeSink{}
	sess := registry.Register("sess-1", "user-1", sink)

	h.handleFrame(sess, &identity{UserID: "user-1"}, []byte(`{"message_type":"unicorn"}`))

	var frame outboundFrame
	if err := json.Unmarshal(sink.frames[0], &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var payload errorPayload
	b, _ := json.Marshal(frame.Payload)
	if err := json.Unmarshal(b, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Code != "unknown_message_type" {
		t.Fatalf("expected unknown_message_type code, got %q", payload.Code)
	}
}

func TestSendAppErrorMapsKindToCode(t *testing.T) {
	registry := session.NewRegistry()
	h := &Handler{sessions: registry}
	sink := &fakeSink{}
	sess := registry.Register("sess-1", "user-1", sink)

	h.sendAppError(sess, apperr.New(apperr.Forbidden, "not allowed"))

	var frame outboundFrame
	if err := json.Unmarshal(sink.frames[0], &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var payload errorPayload
	b, _ := json.Marshal(frame.Payload)
	json.Unmarshal(b, &payload)
	if payload.Code != string(apperr.Forbidden) {
		t.Fatalf("expected code %q, got %q", apperr.Forbidden, payload.Code)
	}
}

func TestSendAppErrorFallsBackToInternalForPlainErrors(t *testing.T) {
	registry := session.NewRegistry()
	h := &Handler{sessions: registry}
	sink := &fakeSink{}
	sess := registry.Register("sess-1", "user-1", sink)

	h.sendAppError(sess, errPlain("boom"))

	var frame outboundFrame
	if err := json.Unmarshal(sink.frames[0], &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var payload errorPayload
	b, _ := json.Marshal(frame.Payload)
	json.Unmarshal(b, &payload)
	if payload.Code != string(apperr.Internal) {
		t.Fatalf("expected fallback code %q, got %q", apperr.Internal, payload.Code)
	}
}

type errPlain string

func (e errPlain) Error() string { return string(e) }
