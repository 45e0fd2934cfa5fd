// Package moderation is the cross-cutting moderation surface named by
// spec §4.G's strict-role-rank actions (kick/ban/mute/role change):
// authorization via ratelimit.Policy, persistence via db.ModerationRepository
// and db.UserRepository, forced disconnection via the Session Registry, and
// broadcast via the Event Bus. Kept separate from channelhub.Hub since these
// actions cut across the voice and text arenas rather than belonging to
// either one.
package moderation

import (
	"time"

	"relay/internal/apperr"
	"relay/internal/bus"
	"relay/internal/db"
	"relay/internal/models"
	"relay/internal/ratelimit"
	"relay/internal/session"
)

// Actor mirrors channelhub.Actor's shape; moderation actions only need the
// identity and role, not channel-scoped mute state.
type Actor struct {
	UserID string
	Role   models.Role
}

type Service struct {
	users      *db.UserRepository
	moderation *db.ModerationRepository
	sessions   *session.Registry
	bus        *bus.Bus
	policy     *ratelimit.Policy
	limiter    *ratelimit.Limiter
}

func NewService(
	users *db.UserRepository,
	moderation *db.ModerationRepository,
	sessions *session.Registry,
	eventBus *bus.Bus,
	policy *ratelimit.Policy,
	limiter *ratelimit.Limiter,
) *Service {
	return &Service{
		users:      users,
		moderation: moderation,
		sessions:   sessions,
		bus:        eventBus,
		policy:     policy,
		limiter:    limiter,
	}
}

func (s *Service) targetRole(targetUserID string) (models.Role, error) {
	target, err := s.users.FindByID(targetUserID)
	if err != nil {
		return "", apperr.New(apperr.NotFound, "user not found")
	}
	return target.Role, nil
}

func (s *Service) authorize(actor Actor, action ratelimit.Action, targetUserID string) error {
	targetRole, err := s.targetRole(targetUserID)
	if err != nil {
		return err
	}
	if !s.policy.Authorize(ratelimit.Actor{UserID: actor.UserID, Role: actor.Role}, action, targetUserID, targetRole) {
		return apperr.New(apperr.Forbidden, "insufficient role rank for this moderation action")
	}
	return nil
}

// Kick disconnects every live session for targetUserID without banning them;
// they may reconnect immediately.
func (s *Service) Kick(actor Actor, targetUserID, reason string) error {
	if err := s.authorize(actor, ratelimit.ActionKick, targetUserID); err != nil {
		return err
	}

	if _, err := s.moderation.LogAction(models.ModLogActionKick, actor.UserID, targetUserID, reason); err != nil {
		return err
	}

	s.sessions.DisconnectUser(targetUserID)
	s.bus.Publish(bus.Everyone(), bus.Event{
		Name:    "USER_KICKED",
		Payload: map[string]any{"user_id": targetUserID, "issuer_id": actor.UserID, "reason": reason},
	})
	return nil
}

// Ban creates a ban record, disconnects the user, and broadcasts their
// removal; expiresAt nil means permanent.
func (s *Service) Ban(actor Actor, targetUserID, reason string, expiresAt *time.Time) (*models.Ban, error) {
	if err := s.authorize(actor, ratelimit.ActionBan, targetUserID); err != nil {
		return nil, err
	}

	ban, err := s.moderation.CreateBan(targetUserID, actor.UserID, reason, expiresAt)
	if err != nil {
		return nil, err
	}
	if _, err := s.moderation.LogAction(models.ModLogActionBan, actor.UserID, targetUserID, reason); err != nil {
		return nil, err
	}

	s.sessions.DisconnectUser(targetUserID)
	s.bus.Publish(bus.Everyone(), bus.Event{
		Name:    "USER_BANNED",
		Payload: map[string]any{"user_id": targetUserID, "issuer_id": actor.UserID, "reason": reason},
	})
	return ban, nil
}

func (s *Service) Unban(actor Actor, targetUserID string) error {
	if err := s.authorize(actor, ratelimit.ActionBan, targetUserID); err != nil {
		return err
	}
	if err := s.moderation.LiftBan(targetUserID); err != nil {
		return err
	}
	_, err := s.moderation.LogAction(models.ModLogActionUnban, actor.UserID, targetUserID, "")
	return err
}

// Mute mutes targetUserID server-wide (channelID == "") or within a single
// channel; channel-scoped mutes still allow the user to speak/post elsewhere.
func (s *Service) Mute(actor Actor, targetUserID, channelID, reason string, expiresAt *time.Time) (*models.Mute, error) {
	if err := s.authorize(actor, ratelimit.ActionMute, targetUserID); err != nil {
		return nil, err
	}

	mute, err := s.moderation.CreateMute(targetUserID, channelID, actor.UserID, reason, expiresAt)
	if err != nil {
		return nil, err
	}
	if _, err := s.moderation.LogAction(models.ModLogActionMute, actor.UserID, targetUserID, reason); err != nil {
		return nil, err
	}

	s.bus.Publish(bus.Everyone(), bus.Event{
		Name:    "USER_MUTED",
		Payload: map[string]any{"user_id": targetUserID, "channel_id": channelID, "issuer_id": actor.UserID, "reason": reason},
	})
	return mute, nil
}

func (s *Service) Unmute(actor Actor, targetUserID, channelID string) error {
	if err := s.authorize(actor, ratelimit.ActionMute, targetUserID); err != nil {
		return err
	}
	if err := s.moderation.LiftMute(targetUserID, channelID); err != nil {
		return err
	}
	_, err := s.moderation.LogAction(models.ModLogActionUnmute, actor.UserID, targetUserID, "")
	return err
}

// ChangeRole requires strict rank: the actor must outrank both the target's
// current role and the role being assigned.
func (s *Service) ChangeRole(actor Actor, targetUserID string, newRole models.Role) error {
	if err := s.authorize(actor, ratelimit.ActionRoleChange, targetUserID); err != nil {
		return err
	}
	if !s.policy.Authorize(ratelimit.Actor{UserID: actor.UserID, Role: actor.Role}, ratelimit.ActionRoleChange, targetUserID, newRole) {
		return apperr.New(apperr.Forbidden, "cannot assign a role at or above your own rank")
	}

	if err := s.users.UpdateRole(targetUserID, newRole); err != nil {
		return err
	}
	if _, err := s.moderation.LogAction(models.ModLogActionRoleChange, actor.UserID, targetUserID, string(newRole)); err != nil {
		return err
	}

	s.bus.Publish(bus.Everyone(), bus.Event{
		Name:    "USER_ROLE_CHANGED",
		Payload: map[string]any{"user_id": targetUserID, "role": newRole, "issuer_id": actor.UserID},
	})
	return nil
}

// Log returns the most recent moderation actions for an admin audit view.
func (s *Service) Log(limit int) ([]*models.ModLogEntry, error) {
	return s.moderation.ListLog(limit)
}
