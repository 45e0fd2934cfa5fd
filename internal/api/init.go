package api

import (
	"net/http"

	"relay/internal/channelhub"
	"relay/internal/db"
	"relay/internal/models"
	"relay/internal/session"
)

// InitHandler serves the authenticated bootstrap bundle a client fetches
// right after login: its own identity, the channel list, and every user
// (the caller included) annotated with live presence from the Session
// Registry.
type InitHandler struct {
	hub      *channelhub.Hub
	users    *db.UserRepository
	sessions *session.Registry
}

func NewInitHandler(hub *channelhub.Hub, users *db.UserRepository, sessions *session.Registry) *InitHandler {
	return &InitHandler{hub: hub, users: users, sessions: sessions}
}

type initUser struct {
	*models.User
	Online bool `json:"online"`
}

func (h *InitHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}

	me, err := h.users.FindByID(identity.UserID)
	if err != nil {
		internalServerError(w)
		return
	}

	channels, err := h.hub.ListChannels()
	if err != nil {
		writeAppError(w, err)
		return
	}

	all, err := h.users.FindAll()
	if err != nil {
		internalServerError(w)
		return
	}
	users := make([]initUser, 0, len(all))
	for _, u := range all {
		users = append(users, initUser{User: u.Public(), Online: h.sessions.IsUserOnline(u.ID)})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"me":       me.Public(),
		"channels": channels,
		"users":    users,
	})
}
