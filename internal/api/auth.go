package api

import (
	"errors"
	"net/http"
	"time"

	"relay/internal/auth"
	"relay/internal/db"
	"relay/internal/models"
)

type AuthHandler struct {
	users         *db.UserRepository
	refreshTokens *db.RefreshTokenRepository
	moderation    *db.ModerationRepository
	jwt           *auth.JWTService
}

func NewAuthHandler(users *db.UserRepository, refreshTokens *db.RefreshTokenRepository, moderation *db.ModerationRepository, jwt *auth.JWTService) *AuthHandler {
	return &AuthHandler{users: users, refreshTokens: refreshTokens, moderation: moderation, jwt: jwt}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type authResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    time.Time    `json:"expiresAt"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
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

	h.issueTokenPair(w, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	user, err := h.users.FindByUsername(req.Username)
	if err != nil {
		unauthorized(w, "invalid username or password")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		unauthorized(w, "invalid username or password")
		return
	}

	if ban, err := h.moderation.ActiveBan(user.ID); err == nil && ban != nil && ban.Active(time.Now()) {
		writeError(w, http.StatusForbidden, "forbidden", "account is banned")
		return
	}

	h.issueTokenPair(w, user)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	tokenHash := auth.HashRefreshToken(req.RefreshToken)
	stored, err := h.refreshTokens.FindByHash(tokenHash)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			unauthorized(w, "invalid refresh token")
			return
		}
		internalServerError(w)
		return
	}
	if stored.RevokedAt != nil || time.Now().After(stored.ExpiresAt) {
		unauthorized(w, "refresh token expired or revoked")
		return
	}

	user, err := h.users.FindByID(stored.UserID)
	if err != nil {
		unauthorized(w, "user not found")
		return
	}

	pair, newHash, err := h.jwt.GenerateTokenPair(user)
	if err != nil {
		internalServerError(w)
		return
	}
	if err := h.refreshTokens.Rotate(stored.ID, user.ID, newHash, h.jwt.RefreshTokenExpiry()); err != nil {
		internalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		User:         user.Public(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		unauthorized(w, "authentication required")
		return
	}
	if err := h.refreshTokens.RevokeAllForUser(identity.UserID); err != nil {
		internalServerError(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) issueTokenPair(w http.ResponseWriter, user *models.User) {
	pair, refreshHash, err := h.jwt.GenerateTokenPair(user)
	if err != nil {
		internalServerError(w)
		return
	}
	if _, err := h.refreshTokens.Create(user.ID, refreshHash, h.jwt.RefreshTokenExpiry()); err != nil {
		internalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		User:         user.Public(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	})
}

func internalServerError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, "internal", "an internal error occurred")
}
