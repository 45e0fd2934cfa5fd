package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"relay/internal/models"
)

type ChannelRepository struct {
	db *DB
}

func NewChannelRepository(db *DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

func (r *ChannelRepository) Create(name string, kind models.ChannelKind, creatorID, topic string) (*models.Channel, error) {
	id, err := GenerateID("chn")
	if err != nil {
		return nil, fmt.Errorf("generating channel ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO channels (id, name, kind, creator_id, topic, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, string(kind), creatorID, topic, now,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating channel: %w", err)
	}

	return &models.Channel{
		ID:        id,
		Name:      name,
		Kind:      kind,
		CreatorID: creatorID,
		Topic:     topic,
		CreatedAt: now,
	}, nil
}

func (r *ChannelRepository) FindByID(id string) (*models.Channel, error) {
	var c models.Channel
	var kind string

	err := r.db.QueryRow(
		`SELECT id, name, kind, creator_id, topic, created_at FROM channels WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.Name, &kind, &c.CreatorID, &c.Topic, &c.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying channel: %w", err)
	}

	c.Kind = models.ChannelKind(kind)
	return &c, nil
}

func (r *ChannelRepository) List() ([]*models.Channel, error) {
	rows, err := r.db.Query(`SELECT id, name, kind, creator_id, topic, created_at FROM channels ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying channels: %w", err)
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		var c models.Channel
		var kind string
		if err := rows.Scan(&c.ID, &c.Name, &kind, &c.CreatorID, &c.Topic, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning channel: %w", err)
		}
		c.Kind = models.ChannelKind(kind)
		channels = append(channels, &c)
	}
	return channels, rows.Err()
}

func (r *ChannelRepository) UpdateTopic(id, topic string) error {
	result, err := r.db.Exec(`UPDATE channels SET topic = ? WHERE id = ?`, topic, id)
	if err != nil {
		return fmt.Errorf("updating channel topic: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *ChannelRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM channels WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting channel: %w", err)
	}
	return checkRowsAffected(result)
}
