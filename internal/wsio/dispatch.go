package wsio

import (
	"encoding/json"
	"errors"
	"log/slog"

	"relay/internal/apperr"
	"relay/internal/channelhub"
	"relay/internal/session"
)

// handleFrame parses one inbound frame and routes it by message_type. Runs
// on the connection's ReadPump goroutine, so it never blocks on another
// session's delivery — every reply goes back through the Session Registry's
// non-blocking Send.
func (h *Handler) handleFrame(sess *session.Session, ident *identity, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.sendError(sess, "invalid_frame", "malformed message")
		return
	}

	switch frame.MessageType {
	case inTypeJoin:
		h.joinChannel(sess.ID, frame.ChannelID)

	case inTypePing:
		h.sendFrame(sess, outboundFrame{Type: outTypePong})

	case inTypeTyping:
		if err := h.hub.Typing(ident.channelActor(), frame.ChannelID); err != nil {
			h.sendAppError(sess, err)
		}

	case inTypeMessage:
		h.handleMessage(sess, ident, frame)

	case inTypeVoiceStateUpdate:
		if _, err := h.voice.UpdateState(frame.ChannelID, ident.UserID, frame.IsMuted, frame.IsDeafened); err != nil {
			h.sendAppError(sess, err)
		}

	case inTypeVoiceSpeaking:
		h.voice.UpdateSpeaking(frame.ChannelID, ident.UserID, frame.IsSpeaking)

	case inTypeScreenShareUpdate:
		h.voice.UpdateScreenShare(frame.ChannelID, ident.UserID, frame.IsScreenSharing)

	case inTypeCameraUpdate:
		h.voice.UpdateCameraShare(frame.ChannelID, ident.UserID, frame.IsCameraSharing)

	default:
		h.sendError(sess, "unknown_message_type", "unrecognized message_type")
	}
}

func (h *Handler) handleMessage(sess *session.Session, ident *identity, frame inboundFrame) {
	attachments := make([]channelhub.AttachmentInput, 0, len(frame.Attachments))
	for _, a := range frame.Attachments {
		attachments = append(attachments, channelhub.AttachmentInput{
			BlobID:       a.BlobID,
			URL:          a.URL,
			PreviewURL:   a.PreviewURL,
			MimeType:     a.MimeType,
			OriginalName: a.OriginalName,
			SizeBytes:    a.SizeBytes,
			Width:        a.Width,
			Height:       a.Height,
		})
	}

	if _, err := h.hub.SendMessage(ident.channelActor(), frame.ChannelID, frame.Content, frame.ReplyToID, attachments); err != nil {
		h.sendAppError(sess, err)
	}
}

func (h *Handler) sendFrame(sess *session.Session, frame outboundFrame) {
	data, err := marshalFrame(frame)
	if err != nil {
		return
	}
	h.sessions.SendToSession(sess.ID, data)
}

func (h *Handler) sendError(sess *session.Session, code, message string) {
	h.sendFrame(sess, outboundFrame{Type: outTypeError, Payload: errorPayload{Code: code, Message: message}})
}

func (h *Handler) sendAppError(sess *session.Session, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		h.sendError(sess, string(appErr.Kind), appErr.Message)
		return
	}
	slog.Error("unhandled wsio dispatch error", "component", "wsio", "error", err)
	h.sendError(sess, string(apperr.Internal), "an internal error occurred")
}

func marshalFrame(frame outboundFrame) ([]byte, error) {
	return json.Marshal(frame)
}
