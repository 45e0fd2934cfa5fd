package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"relay/internal/auth"
	"relay/internal/db"
	"relay/internal/models"
)

// InviteHandler exposes invite-code CRUD and redemption. Grounded on
// db.InviteRepository's atomic Consume; registering through a code follows
// the same hash-and-issue-tokens path as Register.
type InviteHandler struct {
	invites       *db.InviteRepository
	users         *db.UserRepository
	refreshTokens *db.RefreshTokenRepository
	jwt           *auth.JWTService
}

func NewInviteHandler(invites *db.InviteRepository, users *db.UserRepository, refreshTokens *db.RefreshTokenRepository, jwt *auth.JWTService) *InviteHandler {
	return &InviteHandler{invites: invites, users: users, refreshTokens: refreshTokens, jwt: jwt}
}

type createInviteRequest struct {
	MaxUses   int        `json:"maxUses"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (h *InviteHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}

	var req createInviteRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	invite, err := h.invites.Create(identity.UserID, req.MaxUses, req.ExpiresAt)
	if err != nil {
		internalServerError(w)
		return
	}
	writeJSON(w, http.StatusCreated, invite)
}

func (h *InviteHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if _, ok := IdentityFromContext(r); !ok {
		unauthorized(w, "authentication required")
		return
	}
	if err := h.invites.Revoke(chi.URLParam(r, "id")); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type redeemInviteRequest struct {
	Code     string `json:"code" validate:"required"`
	Username string `json:"username" validate:"required,min=3,max=32"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// Redeem registers a new account gated behind a usable invite code, atomically
// consuming one use before the account is created.
func (h *InviteHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemInviteRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if _, err := h.invites.Consume(req.Code); err != nil {
		writeError(w, http.StatusForbidden, "forbidden", "invite code is invalid, expired, or exhausted")
		return
	}

	if available, err := h.users.IsUsernameAvailable(req.Username); err != nil {
		internalServerError(w)
		return
	} else if !available {
		writeError(w, http.StatusConflict, "conflict", "username already taken")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		internalServerError(w)
		return
	}

	user, err := h.users.Create(req.Username, req.Email, hash, models.RoleMember)
	if err != nil {
		internalServerError(w)
		return
	}

	pair, refreshHash, err := h.jwt.GenerateTokenPair(user)
	if err != nil {
		internalServerError(w)
		return
	}
	if _, err := h.refreshTokens.Create(user.ID, refreshHash, h.jwt.RefreshTokenExpiry()); err != nil {
		internalServerError(w)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		User:         user.Public(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	})
}
