package wsio

import "relay/internal/bus"

// deliveryScope controls how a bus.TargetChannel event fans out. Text-arena
// events reach only the sessions currently joined to that channel (spec's
// one-current-text-channel-per-session model); voice/presence events reach
// every online session regardless of channel subscription, matching the
// teacher's hub.go broadcast-to-everyone policy for voice state.
type deliveryScope int

const (
	scopeChannelSubscribers deliveryScope = iota
	scopeGlobal
)

// onBusEvent is the single subscriber translating internal bus events into
// wire frames. It never blocks the publisher for long: SendToSession/
// SendToUser/BroadcastAll all enqueue onto buffered per-socket channels.
func (h *Handler) onBusEvent(target bus.Target, evt bus.Event) {
	frame, scope, ok := translate(evt)
	if !ok {
		return
	}

	data, err := marshalFrame(frame)
	if err != nil {
		return
	}

	switch target.Kind {
	case bus.TargetEveryone:
		h.sessions.BroadcastAll(data)
	case bus.TargetUser:
		h.sessions.SendToUser(target.ID, data)
	case bus.TargetSession:
		h.sessions.SendToSession(target.ID, data)
	case bus.TargetChannel:
		if scope == scopeGlobal {
			h.sessions.BroadcastAll(data)
		} else {
			h.broadcastToChannel(target.ID, data)
		}
	}
}

func (h *Handler) broadcastFrame(frame outboundFrame) {
	data, err := marshalFrame(frame)
	if err != nil {
		return
	}
	h.sessions.BroadcastAll(data)
}

// translate maps one internal bus.Event to its wire frame and delivery
// scope. ok is false for events that are internal bookkeeping only and have
// no corresponding entry in the wire contract's discriminated union
// (PRODUCER_CLOSED, USER_MUTED — see DESIGN.md).
func translate(evt bus.Event) (frame outboundFrame, scope deliveryScope, ok bool) {
	switch evt.Name {
	case "CHANNEL_CREATE":
		return outboundFrame{Type: outTypeChannelCreated, Payload: evt.Payload}, scopeGlobal, true
	case "CHANNEL_UPDATE":
		return outboundFrame{Type: outTypeChannelUpdated, Payload: evt.Payload}, scopeGlobal, true
	case "CHANNEL_DELETE":
		return outboundFrame{Type: outTypeChannelDeleted, Payload: evt.Payload}, scopeGlobal, true

	case "TYPING_START":
		return outboundFrame{Type: outTypeTyping, Payload: evt.Payload}, scopeChannelSubscribers, true
	case "MESSAGE_CREATE":
		return outboundFrame{Type: outTypeMessage, Payload: evt.Payload}, scopeChannelSubscribers, true
	case "MESSAGE_UPDATE":
		return outboundFrame{Type: outTypeMessageEdited, Payload: evt.Payload}, scopeChannelSubscribers, true
	case "MESSAGE_DELETE":
		return outboundFrame{Type: outTypeMessageDeleted, Payload: evt.Payload}, scopeChannelSubscribers, true
	case "LINK_PREVIEW_READY":
		return outboundFrame{Type: outTypeLinkPreviewReady, Payload: evt.Payload}, scopeChannelSubscribers, true

	case "MESSAGE_REACTION_TOGGLE":
		eventType := outTypeReactionRemoved
		if added, _ := payloadBool(evt.Payload, "added"); added {
			eventType = outTypeReactionAdded
		}
		return outboundFrame{Type: eventType, Payload: evt.Payload}, scopeChannelSubscribers, true

	case "VOICE_STATE_UPDATE":
		eventType := outTypeVoiceStateUpdated
		switch transition, _ := payloadString(evt.Payload, "transition"); transition {
		case "joined":
			eventType = outTypeVoiceUserJoined
		case "left":
			eventType = outTypeVoiceUserLeft
		}
		return outboundFrame{Type: eventType, Payload: evt.Payload}, scopeGlobal, true
	case "VOICE_SPEAKING":
		return outboundFrame{Type: outTypeVoiceSpeaking, Payload: evt.Payload}, scopeGlobal, true
	case "SCREEN_SHARE_UPDATE":
		return outboundFrame{Type: outTypeScreenShareUpdated, Payload: evt.Payload}, scopeGlobal, true
	case "CAMERA_SHARE_UPDATE":
		return outboundFrame{Type: outTypeCameraUpdated, Payload: evt.Payload}, scopeGlobal, true
	case "NEW_PRODUCER":
		return outboundFrame{Type: outTypeNewProducer, Payload: evt.Payload}, scopeGlobal, true

	case "USER_KICKED":
		return outboundFrame{Type: outTypeUserKicked, Payload: evt.Payload}, scopeGlobal, true
	case "USER_BANNED":
		return outboundFrame{Type: outTypeUserBanned, Payload: evt.Payload}, scopeGlobal, true
	case "USER_ROLE_CHANGED":
		return outboundFrame{Type: outTypeUserRoleChanged, Payload: evt.Payload}, scopeGlobal, true
	case "USER_RENAMED":
		return outboundFrame{Type: outTypeUserRenamed, Payload: evt.Payload}, scopeGlobal, true
	case "USER_AVATAR_UPDATED":
		return outboundFrame{Type: outTypeUserAvatarUpdated, Payload: evt.Payload}, scopeGlobal, true

	default:
		// PRODUCER_CLOSED and USER_MUTED are published on the bus but have
		// no place in the wire contract's type union, so they are not
		// forwarded; no other bus subscriber consumes them either.
		return outboundFrame{}, scopeGlobal, false
	}
}

func payloadString(payload any, key string) (string, bool) {
	m, ok := payload.(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := m[key].(string)
	return v, ok
}

func payloadBool(payload any, key string) (bool, bool) {
	m, ok := payload.(map[string]any)
	if !ok {
		return false, false
	}
	v, ok := m[key].(bool)
	return v, ok
}
