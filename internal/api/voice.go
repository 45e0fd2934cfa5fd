package api

import (
	"net/http"

	"relay/internal/sfu"
	"relay/internal/voice"
)

// VoiceHandler exposes the Voice Room Controller's join/leave lifecycle over
// REST, plus the per-user ICE server list a client configures its
// transports with once it has joined.
type VoiceHandler struct {
	voice *voice.Controller
	sfu   *sfu.Manager
}

func NewVoiceHandler(controller *voice.Controller, manager *sfu.Manager) *VoiceHandler {
	return &VoiceHandler{voice: controller, sfu: manager}
}

type voiceJoinRequest struct {
	ChannelID string `json:"channelId" validate:"required"`
	Muted     bool   `json:"muted"`
	Deafened  bool   `json:"deafened"`
}

type voiceJoinResponse struct {
	ICEServers []sfu.ICEServerInfo `json:"iceServers"`
}

func (h *VoiceHandler) Join(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}

	var req voiceJoinRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.voice.BeginJoin(req.ChannelID, identity.UserID, req.Muted, req.Deafened); err != nil {
		writeAppError(w, err)
		return
	}
	if _, err := h.voice.ActivateSession(req.ChannelID, identity.UserID); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, voiceJoinResponse{ICEServers: h.sfu.ICEServers(identity.UserID)})
}

type voiceLeaveRequest struct {
	ChannelID string `json:"channelId" validate:"required"`
}

func (h *VoiceHandler) Leave(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}

	var req voiceLeaveRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	h.voice.Leave(req.ChannelID, identity.UserID)
	w.WriteHeader(http.StatusNoContent)
}
