package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"relay/internal/channelhub"
	"relay/internal/models"
)

type ChannelHandler struct {
	hub *channelhub.Hub
}

func NewChannelHandler(hub *channelhub.Hub) *ChannelHandler {
	return &ChannelHandler{hub: hub}
}

func actorFrom(identity *Identity) channelhub.Actor {
	return channelhub.Actor{
		UserID:     identity.UserID,
		Username:   identity.Username,
		AvatarURL:  identity.AvatarURL,
		Role:       identity.Role,
		MutedUntil: identity.MutedUntil,
	}
}

func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	channels, err := h.hub.ListChannels()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

type createChannelRequest struct {
	Name  string             `json:"name" validate:"required,min=1,max=100"`
	Kind  models.ChannelKind `json:"kind" validate:"required"`
	Topic string             `json:"topic"`
}

func (h *ChannelHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}

	var req createChannelRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	channel, err := h.hub.CreateChannel(actorFrom(identity), req.Name, req.Kind, req.Topic)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, channel)
}

type updateChannelRequest struct {
	Topic string `json:"topic"`
}

func (h *ChannelHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}

	var req updateChannelRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	channelID := chi.URLParam(r, "id")
	channel, err := h.hub.UpdateChannelTopic(actorFrom(identity), channelID, req.Topic)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, channel)
}

func (h *ChannelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}

	channelID := chi.URLParam(r, "id")
	if err := h.hub.DeleteChannel(actorFrom(identity), channelID); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
