package db

import (
	"crypto/rand"
	"database/sql"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	"relay/internal/models"
)

type InviteRepository struct {
	db *DB
}

func NewInviteRepository(db *DB) *InviteRepository {
	return &InviteRepository{db: db}
}

func generateInviteCode() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b)), nil
}

func (r *InviteRepository) Create(creatorID string, maxUses int, expiresAt *time.Time) (*models.Invite, error) {
	id, err := GenerateID("inv")
	if err != nil {
		return nil, fmt.Errorf("generating invite ID: %w", err)
	}
	code, err := generateInviteCode()
	if err != nil {
		return nil, fmt.Errorf("generating invite code: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO invites (id, code, creator_id, max_uses, uses, expires_at, created_at) VALUES (?, ?, ?, ?, 0, ?, ?)`,
		id, code, creatorID, maxUses, expiresAt, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating invite: %w", err)
	}

	return &models.Invite{ID: id, Code: code, CreatorID: creatorID, MaxUses: maxUses, ExpiresAt: expiresAt, CreatedAt: now}, nil
}

func (r *InviteRepository) FindByCode(code string) (*models.Invite, error) {
	var i models.Invite
	var expiresAt, revokedAt sql.NullTime

	err := r.db.QueryRow(
		`SELECT id, code, creator_id, max_uses, uses, expires_at, revoked_at, created_at FROM invites WHERE code = ?`,
		code,
	).Scan(&i.ID, &i.Code, &i.CreatorID, &i.MaxUses, &i.Uses, &expiresAt, &revokedAt, &i.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying invite: %w", err)
	}
	i.ExpiresAt = nullTimeToPtr(expiresAt)
	i.RevokedAt = nullTimeToPtr(revokedAt)
	return &i, nil
}

// Consume atomically increments uses, guarded by max_uses/expiry/revocation
// so two concurrent redemptions of the last slot can't both succeed.
func (r *InviteRepository) Consume(code string) (*models.Invite, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting invite consume transaction: %w", err)
	}
	defer tx.Rollback()

	var i models.Invite
	var expiresAt, revokedAt sql.NullTime
	err = tx.QueryRow(
		`SELECT id, code, creator_id, max_uses, uses, expires_at, revoked_at, created_at FROM invites WHERE code = ?`,
		code,
	).Scan(&i.ID, &i.Code, &i.CreatorID, &i.MaxUses, &i.Uses, &expiresAt, &revokedAt, &i.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying invite for consume: %w", err)
	}
	i.ExpiresAt = nullTimeToPtr(expiresAt)
	i.RevokedAt = nullTimeToPtr(revokedAt)

	if !i.Usable(time.Now().UTC()) {
		return nil, fmt.Errorf("invite not usable")
	}

	result, err := tx.Exec(
		`UPDATE invites SET uses = uses + 1 WHERE id = ? AND uses < max_uses OR (id = ? AND max_uses = 0)`,
		i.ID, i.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("consuming invite: %w", err)
	}
	if err := checkRowsAffected(result); err != nil {
		return nil, err
	}
	i.Uses++

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing invite consume: %w", err)
	}
	return &i, nil
}

func (r *InviteRepository) Revoke(id string) error {
	result, err := r.db.Exec(`UPDATE invites SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("revoking invite: %w", err)
	}
	return checkRowsAffected(result)
}
