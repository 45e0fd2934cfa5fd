package api

import (
	"net/http"

	"relay/internal/bus"
	"relay/internal/db"
	"relay/internal/models"
)

type UserHandler struct {
	users *db.UserRepository
	bus   *bus.Bus
}

func NewUserHandler(users *db.UserRepository, eventBus *bus.Bus) *UserHandler {
	return &UserHandler{users: users, bus: eventBus}
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}
	user, err := h.users.FindByID(identity.UserID)
	if err != nil {
		internalServerError(w)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.FindAll()
	if err != nil {
		internalServerError(w)
		return
	}
	public := make([]*models.User, 0, len(users))
	for _, u := range users {
		public = append(public, u.Public())
	}
	writeJSON(w, http.StatusOK, public)
}

type updateMeRequest struct {
	DisplayName string  `json:"displayName" validate:"required,min=1,max=64"`
	AvatarURL   *string `json:"avatarUrl"`
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}

	var req updateMeRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	before, err := h.users.FindByID(identity.UserID)
	if err != nil {
		internalServerError(w)
		return
	}

	if err := h.users.UpdateProfile(identity.UserID, req.DisplayName, req.AvatarURL); err != nil {
		internalServerError(w)
		return
	}

	user, err := h.users.FindByID(identity.UserID)
	if err != nil {
		internalServerError(w)
		return
	}

	if user.DisplayName != before.DisplayName {
		h.bus.Publish(bus.Everyone(), bus.Event{
			Name:    "USER_RENAMED",
			Payload: map[string]any{"user_id": user.ID, "display_name": user.DisplayName},
		})
	}
	if avatarChanged(before.AvatarURL, user.AvatarURL) {
		h.bus.Publish(bus.Everyone(), bus.Event{
			Name:    "USER_AVATAR_UPDATED",
			Payload: map[string]any{"user_id": user.ID, "avatar_url": user.AvatarURL},
		})
	}

	writeJSON(w, http.StatusOK, user)
}

func avatarChanged(before, after *string) bool {
	if before == nil && after == nil {
		return false
	}
	if before == nil || after == nil {
		return true
	}
	return *before != *after
}
