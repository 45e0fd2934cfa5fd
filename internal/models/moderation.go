package models

import "time"

type Ban struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	IssuerID  string     `json:"issuerId"`
	Reason    string     `json:"reason,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	LiftedAt  *time.Time `json:"liftedAt,omitempty"`
}

func (b *Ban) Active(now time.Time) bool {
	if b.LiftedAt != nil {
		return false
	}
	if b.ExpiresAt != nil && !now.Before(*b.ExpiresAt) {
		return false
	}
	return true
}

type Mute struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	ChannelID *string    `json:"channelId,omitempty"`
	IssuerID  string     `json:"issuerId"`
	Reason    string     `json:"reason,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	LiftedAt  *time.Time `json:"liftedAt,omitempty"`
}

func (m *Mute) Active(now time.Time) bool {
	if m.LiftedAt != nil {
		return false
	}
	if m.ExpiresAt != nil && !now.Before(*m.ExpiresAt) {
		return false
	}
	return true
}

type ModLogAction string

const (
	ModLogActionBan        ModLogAction = "ban"
	ModLogActionUnban      ModLogAction = "unban"
	ModLogActionMute       ModLogAction = "mute"
	ModLogActionUnmute     ModLogAction = "unmute"
	ModLogActionKick       ModLogAction = "kick"
	ModLogActionDeleteMsg  ModLogAction = "delete_message"
	ModLogActionRoleChange ModLogAction = "role_change"
)

type ModLogEntry struct {
	ID         string       `json:"id"`
	Action     ModLogAction `json:"action"`
	IssuerID   string       `json:"issuerId"`
	TargetID   string       `json:"targetId"`
	Reason     string       `json:"reason,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
}

type Invite struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	CreatorID string     `json:"creatorId"`
	MaxUses   int        `json:"maxUses"`
	Uses      int        `json:"uses"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (i *Invite) Usable(now time.Time) bool {
	if i.RevokedAt != nil {
		return false
	}
	if i.ExpiresAt != nil && !now.Before(*i.ExpiresAt) {
		return false
	}
	if i.MaxUses > 0 && i.Uses >= i.MaxUses {
		return false
	}
	return true
}
