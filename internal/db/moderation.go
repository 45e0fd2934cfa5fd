package db

import (
	"database/sql"
	"fmt"
	"time"

	"relay/internal/models"
)

type ModerationRepository struct {
	db *DB
}

func NewModerationRepository(db *DB) *ModerationRepository {
	return &ModerationRepository{db: db}
}

func (r *ModerationRepository) CreateBan(userID, issuerID, reason string, expiresAt *time.Time) (*models.Ban, error) {
	id, err := GenerateID("ban")
	if err != nil {
		return nil, fmt.Errorf("generating ban ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO bans (id, user_id, issuer_id, reason, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, issuerID, reason, now, expiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating ban: %w", err)
	}
	return &models.Ban{ID: id, UserID: userID, IssuerID: issuerID, Reason: reason, CreatedAt: now, ExpiresAt: expiresAt}, nil
}

func (r *ModerationRepository) LiftBan(userID string) error {
	result, err := r.db.Exec(
		`UPDATE bans SET lifted_at = ? WHERE user_id = ? AND lifted_at IS NULL`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("lifting ban: %w", err)
	}
	return checkRowsAffected(result)
}

// ActiveBan returns the currently active ban for userID, or nil when there is
// none, evaluated lazily at call time rather than via a background sweep
// (expiry is a point-in-time comparison, not a state transition).
func (r *ModerationRepository) ActiveBan(userID string) (*models.Ban, error) {
	rows, err := r.db.Query(
		`SELECT id, user_id, issuer_id, reason, created_at, expires_at, lifted_at
		 FROM bans WHERE user_id = ? AND lifted_at IS NULL ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying bans: %w", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	for rows.Next() {
		b, err := scanBan(rows)
		if err != nil {
			return nil, err
		}
		if b.Active(now) {
			return b, nil
		}
	}
	return nil, rows.Err()
}

func scanBan(rows *sql.Rows) (*models.Ban, error) {
	var b models.Ban
	var expiresAt, liftedAt sql.NullTime
	if err := rows.Scan(&b.ID, &b.UserID, &b.IssuerID, &b.Reason, &b.CreatedAt, &expiresAt, &liftedAt); err != nil {
		return nil, fmt.Errorf("scanning ban: %w", err)
	}
	b.ExpiresAt = nullTimeToPtr(expiresAt)
	b.LiftedAt = nullTimeToPtr(liftedAt)
	return &b, nil
}

func (r *ModerationRepository) CreateMute(userID, channelID, issuerID, reason string, expiresAt *time.Time) (*models.Mute, error) {
	id, err := GenerateID("mut")
	if err != nil {
		return nil, fmt.Errorf("generating mute ID: %w", err)
	}
	now := time.Now().UTC()
	var chID *string
	if channelID != "" {
		chID = &channelID
	}

	_, err = r.db.Exec(
		`INSERT INTO mutes (id, user_id, channel_id, issuer_id, reason, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, userID, chID, issuerID, reason, now, expiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating mute: %w", err)
	}
	return &models.Mute{ID: id, UserID: userID, ChannelID: chID, IssuerID: issuerID, Reason: reason, CreatedAt: now, ExpiresAt: expiresAt}, nil
}

func (r *ModerationRepository) LiftMute(userID, channelID string) error {
	var result sql.Result
	var err error
	if channelID == "" {
		result, err = r.db.Exec(`UPDATE mutes SET lifted_at = ? WHERE user_id = ? AND channel_id IS NULL AND lifted_at IS NULL`, time.Now().UTC(), userID)
	} else {
		result, err = r.db.Exec(`UPDATE mutes SET lifted_at = ? WHERE user_id = ? AND channel_id = ? AND lifted_at IS NULL`, time.Now().UTC(), userID, channelID)
	}
	if err != nil {
		return fmt.Errorf("lifting mute: %w", err)
	}
	return checkRowsAffected(result)
}

// ActiveMute reports whether userID is currently muted globally or in
// channelID, evaluated lazily.
func (r *ModerationRepository) ActiveMute(userID, channelID string) (bool, error) {
	rows, err := r.db.Query(
		`SELECT id, user_id, channel_id, issuer_id, reason, created_at, expires_at, lifted_at
		 FROM mutes WHERE user_id = ? AND lifted_at IS NULL AND (channel_id IS NULL OR channel_id = ?)`,
		userID, channelID,
	)
	if err != nil {
		return false, fmt.Errorf("querying mutes: %w", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	for rows.Next() {
		var m models.Mute
		var chID sql.NullString
		var expiresAt, liftedAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.UserID, &chID, &m.IssuerID, &m.Reason, &m.CreatedAt, &expiresAt, &liftedAt); err != nil {
			return false, fmt.Errorf("scanning mute: %w", err)
		}
		m.ExpiresAt = nullTimeToPtr(expiresAt)
		m.LiftedAt = nullTimeToPtr(liftedAt)
		if m.Active(now) {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (r *ModerationRepository) LogAction(action models.ModLogAction, issuerID, targetID, reason string) (*models.ModLogEntry, error) {
	id, err := GenerateID("mlg")
	if err != nil {
		return nil, fmt.Errorf("generating mod log ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO mod_log (id, action, issuer_id, target_id, reason, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(action), issuerID, targetID, reason, now,
	)
	if err != nil {
		return nil, fmt.Errorf("logging moderation action: %w", err)
	}
	return &models.ModLogEntry{ID: id, Action: action, IssuerID: issuerID, TargetID: targetID, Reason: reason, CreatedAt: now}, nil
}

func (r *ModerationRepository) ListLog(limit int) ([]*models.ModLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(
		`SELECT id, action, issuer_id, target_id, reason, created_at FROM mod_log ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying mod log: %w", err)
	}
	defer rows.Close()

	var entries []*models.ModLogEntry
	for rows.Next() {
		var e models.ModLogEntry
		var action string
		if err := rows.Scan(&e.ID, &action, &e.IssuerID, &e.TargetID, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning mod log entry: %w", err)
		}
		e.Action = models.ModLogAction(action)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
