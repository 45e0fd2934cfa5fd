package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"relay/internal/channelhub"
	"relay/internal/constants"
	"relay/internal/db"
)

type MessageHandler struct {
	hub *channelhub.Hub
}

func NewMessageHandler(hub *channelhub.Hub) *MessageHandler {
	return &MessageHandler{hub: hub}
}

func (h *MessageHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")

	limit := constants.MessageHistoryDefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	var cursor *db.Cursor
	if raw := r.URL.Query().Get("before"); raw != "" {
		decoded, err := db.DecodeCursor(raw)
		if err != nil {
			badRequest(w, "invalid before cursor")
			return
		}
		cursor = decoded
	}

	messages, err := h.hub.History(channelID, cursor, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// sendMessageAttachment echoes the blob metadata an earlier upload call
// returned; the client round-trips it here rather than the server holding
// a pending-blob table for attachments that are never linked to a message.
type sendMessageAttachment struct {
	BlobID       string  `json:"blobId" validate:"required"`
	URL          string  `json:"url" validate:"required"`
	PreviewURL   *string `json:"previewUrl"`
	MimeType     string  `json:"mimeType" validate:"required"`
	OriginalName string  `json:"originalName" validate:"required"`
	SizeBytes    int64   `json:"sizeBytes" validate:"required"`
	Width        *int    `json:"width"`
	Height       *int    `json:"height"`
}

type sendMessageRequest struct {
	Content     string                  `json:"content"`
	ReplyToID   *string                 `json:"replyToId"`
	Attachments []sendMessageAttachment `json:"attachments"`
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}

	channelID := chi.URLParam(r, "id")
	var req sendMessageRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	attachments := make([]channelhub.AttachmentInput, 0, len(req.Attachments))
	for _, a := range req.Attachments {
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

	msg, err := h.hub.SendMessage(actorFrom(identity), channelID, req.Content, req.ReplyToID, attachments)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

type editMessageRequest struct {
	Content string `json:"content" validate:"required,min=1"`
}

func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}

	messageID := chi.URLParam(r, "mid")
	var req editMessageRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	msg, err := h.hub.EditMessage(actorFrom(identity), messageID, req.Content)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}

	messageID := chi.URLParam(r, "mid")
	if err := h.hub.DeleteMessage(actorFrom(identity), messageID); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) AddReaction(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}

	if err := h.hub.AddReaction(actorFrom(identity), chi.URLParam(r, "mid"), chi.URLParam(r, "emoji")); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) RemoveReaction(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}

	if err := h.hub.RemoveReaction(actorFrom(identity), chi.URLParam(r, "mid"), chi.URLParam(r, "emoji")); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
