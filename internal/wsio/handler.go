package wsio

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"relay/internal/auth"
	"relay/internal/bus"
	"relay/internal/channelhub"
	"relay/internal/db"
	"relay/internal/models"
	"relay/internal/session"
	"relay/internal/voice"
)

// identity is a connection's resolved caller, re-derived from the query
// token at upgrade time. Unlike the REST path (which re-checks role/ban/mute
// on every request), a socket caches this for its lifetime and is instead
// force-closed the moment its access token expires — see scheduleExpiry.
type identity struct {
	UserID     string
	Username   string
	Role       models.Role
	AvatarURL  *string
	MutedUntil *time.Time
}

func (i *identity) channelActor() channelhub.Actor {
	return channelhub.Actor{UserID: i.UserID, Username: i.Username, AvatarURL: i.AvatarURL, Role: i.Role, MutedUntil: i.MutedUntil}
}

// Handler upgrades /ws connections, resolves their caller, and wires the
// resulting socket into the Session Registry and domain packages. One
// Handler is shared across every connection for the process's lifetime.
type Handler struct {
	jwt        *auth.JWTService
	users      *db.UserRepository
	moderation *db.ModerationRepository
	sessions   *session.Registry
	hub        *channelhub.Hub
	voice      *voice.Controller

	upgrader websocket.Upgrader

	subMu           sync.RWMutex
	channelSessions map[string]map[string]struct{} // channelID -> sessionIDs currently joined
	sessionChannel  map[string]string              // sessionID -> its current channelID
}

func NewHandler(
	jwtService *auth.JWTService,
	users *db.UserRepository,
	moderation *db.ModerationRepository,
	sessions *session.Registry,
	hub *channelhub.Hub,
	voiceController *voice.Controller,
	eventBus *bus.Bus,
	corsOrigins []string,
) *Handler {
	h := &Handler{
		jwt:             jwtService,
		users:           users,
		moderation:      moderation,
		sessions:        sessions,
		hub:             hub,
		voice:           voiceController,
		channelSessions: make(map[string]map[string]struct{}),
		sessionChannel:  make(map[string]string),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(corsOrigins),
	}
	eventBus.Subscribe(h.onBusEvent)
	return h
}

// originChecker mirrors corsMiddleware's allow-all/allow-list policy so the
// WS upgrade and REST CORS decisions never diverge.
func originChecker(allowedOrigins []string) func(*http.Request) bool {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		return allowed[origin]
	}
}

// ServeWS authenticates via the token query param, upgrades the connection,
// and runs its pumps until the client disconnects.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	ident, expiresAt, err := h.resolveIdentity(token)
	if err != nil {
		if err == errBannedUser {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sock := newSocket(conn)
	sessionID := uuid.New().String()

	firstSession := !h.sessions.IsUserOnline(ident.UserID)
	sess := h.sessions.Register(sessionID, ident.UserID, sock)
	if firstSession {
		h.broadcastPresence(outTypeUserOnline, ident.UserID)
	}

	stopExpiry := h.scheduleExpiry(sess, sock, expiresAt)

	go sock.WritePump()
	go func() {
		sock.ReadPump(func(raw []byte) {
			sess.Touch()
			h.handleFrame(sess, ident, raw)
		})
		stopExpiry()
		h.cleanupSession(sess)
	}()
}

// scheduleExpiry force-closes this one socket (not its user's other
// sessions) when its access token expires, standing in for the teacher's
// re-IDENTIFY handshake since this wire contract authenticates once at
// connect time rather than mid-stream.
func (h *Handler) scheduleExpiry(sess *session.Session, sock *socket, expiresAt time.Time) (stop func()) {
	timer := time.AfterFunc(time.Until(expiresAt), func() {
		h.sendError(sess, "auth_expired", "access token expired")
		sock.Close()
	})
	return func() { timer.Stop() }
}

// cleanupSession runs once a socket's pumps exit, whether from a clean
// close or the transport just vanishing. Per spec's disconnect-cleanup
// edge case, an abrupt drop must still produce the same voice_user_left/
// producer teardown a well-behaved leave call would — so any voice rooms
// this user was still active in are left on their behalf before presence
// goes offline.
func (h *Handler) cleanupSession(sess *session.Session) {
	h.unsubscribeChannel(sess.ID)
	h.sessions.Deregister(sess.ID)

	if !h.sessions.IsUserOnline(sess.UserID) {
		for _, channelID := range h.voice.ActiveChannels(sess.UserID) {
			h.voice.Leave(channelID, sess.UserID)
		}
		h.broadcastPresence(outTypeUserOffline, sess.UserID)
	}
}

func (h *Handler) broadcastPresence(eventType, userID string) {
	h.broadcastFrame(outboundFrame{Type: eventType, Payload: map[string]string{"user_id": userID}})
}

func (h *Handler) resolveIdentity(accessToken string) (*identity, time.Time, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, time.Time{}, errMissingToken
	}

	claims, err := h.jwt.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, time.Time{}, err
	}

	user, err := h.users.FindByID(claims.UserID)
	if err != nil {
		return nil, time.Time{}, err
	}

	if ban, err := h.moderation.ActiveBan(user.ID); err == nil && ban != nil && ban.Active(time.Now()) {
		return nil, time.Time{}, errBannedUser
	}

	ident := &identity{UserID: user.ID, Username: user.Username, Role: user.Role, AvatarURL: user.AvatarURL}
	if muted, err := h.moderation.ActiveMute(user.ID, ""); err == nil && muted {
		until := time.Now().Add(time.Hour)
		ident.MutedUntil = &until
	}

	expiresAt := time.Now().Add(time.Hour)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return ident, expiresAt, nil
}

type wsioErr string

func (e wsioErr) Error() string { return string(e) }

const (
	errMissingToken = wsioErr("missing token")
	errBannedUser   = wsioErr("account is banned")
)

func (h *Handler) joinChannel(sessionID, channelID string) {
	h.subMu.Lock()
	defer h.subMu.Unlock()

	if prev, ok := h.sessionChannel[sessionID]; ok {
		if set := h.channelSessions[prev]; set != nil {
			delete(set, sessionID)
			if len(set) == 0 {
				delete(h.channelSessions, prev)
			}
		}
	}

	if h.channelSessions[channelID] == nil {
		h.channelSessions[channelID] = make(map[string]struct{})
	}
	h.channelSessions[channelID][sessionID] = struct{}{}
	h.sessionChannel[sessionID] = channelID
}

func (h *Handler) unsubscribeChannel(sessionID string) {
	h.subMu.Lock()
	defer h.subMu.Unlock()

	channelID, ok := h.sessionChannel[sessionID]
	if !ok {
		return
	}
	delete(h.sessionChannel, sessionID)
	if set := h.channelSessions[channelID]; set != nil {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(h.channelSessions, channelID)
		}
	}
}

func (h *Handler) broadcastToChannel(channelID string, frame []byte) {
	h.subMu.RLock()
	ids := make([]string, 0, len(h.channelSessions[channelID]))
	for id := range h.channelSessions[channelID] {
		ids = append(ids, id)
	}
	h.subMu.RUnlock()

	for _, id := range ids {
		h.sessions.SendToSession(id, frame)
	}
}
