package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"relay/internal/models"
	"relay/internal/moderation"
)

type ModerationHandler struct {
	mod *moderation.Service
}

func NewModerationHandler(mod *moderation.Service) *ModerationHandler {
	return &ModerationHandler{mod: mod}
}

func actorForModeration(identity *Identity) moderation.Actor {
	return moderation.Actor{UserID: identity.UserID, Role: identity.Role}
}

type kickRequest struct {
	Reason string `json:"reason"`
}

func (h *ModerationHandler) Kick(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}
	var req kickRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.mod.Kick(actorForModeration(identity), chi.URLParam(r, "userId"), req.Reason); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type banRequest struct {
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (h *ModerationHandler) Ban(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}
	var req banRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	ban, err := h.mod.Ban(actorForModeration(identity), chi.URLParam(r, "userId"), req.Reason, req.ExpiresAt)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ban)
}

func (h *ModerationHandler) Unban(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}
	if err := h.mod.Unban(actorForModeration(identity), chi.URLParam(r, "userId")); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type muteRequest struct {
	ChannelID string     `json:"channelId"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (h *ModerationHandler) Mute(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}
	var req muteRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	mute, err := h.mod.Mute(actorForModeration(identity), chi.URLParam(r, "userId"), req.ChannelID, req.Reason, req.ExpiresAt)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mute)
}

type unmuteRequest struct {
	ChannelID string `json:"channelId"`
}

func (h *ModerationHandler) Unmute(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}
	var req unmuteRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.mod.Unmute(actorForModeration(identity), chi.URLParam(r, "userId"), req.ChannelID); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type roleChangeRequest struct {
	Role models.Role `json:"role" validate:"required"`
}

func (h *ModerationHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}
	var req roleChangeRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.mod.ChangeRole(actorForModeration(identity), chi.URLParam(r, "userId"), req.Role); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ModerationHandler) Log(w http.ResponseWriter, r *http.Request) {
	entries, err := h.mod.Log(100)
	if err != nil {
		internalServerError(w)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
