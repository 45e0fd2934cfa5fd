package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"relay/internal/constants"
	"relay/internal/models"
)

type MessageRepository struct {
	db *DB
}

func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(channelID, authorID, content string, replyToID *string) (*models.Message, error) {
	id, err := GenerateID("msg")
	if err != nil {
		return nil, fmt.Errorf("generating message ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO messages (id, channel_id, author_id, content, reply_to_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, channelID, authorID, content, replyToID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	return &models.Message{
		ID:        id,
		ChannelID: channelID,
		AuthorID:  authorID,
		Content:   content,
		ReplyToID: replyToID,
		CreatedAt: now,
	}, nil
}

// GetHistory returns messages in channelID older than cursor, (created_at,
// id) descending, newest first. A stable keyset page that tolerates
// concurrent inserts, unlike a naive OFFSET/LIMIT page.
func (r *MessageRepository) GetHistory(channelID string, cursor *Cursor, limit int) ([]*models.Message, error) {
	if limit <= 0 || limit > constants.MessageHistoryMaxLimit {
		limit = constants.MessageHistoryDefaultLimit
	}

	query := `SELECT m.id, m.channel_id, m.author_id, u.username, u.avatar_url, m.content, m.reply_to_id, m.created_at, m.edited_at
		FROM messages m
		LEFT JOIN users u ON m.author_id = u.id
		WHERE m.channel_id = ? AND m.deleted_at IS NULL`
	args := []any{channelID}

	if cursor != nil {
		query += ` AND (m.created_at, m.id) < (?, ?)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	query += ` ORDER BY m.created_at DESC, m.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		var m models.Message
		var editedAt sql.NullTime

		err := rows.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.AuthorName, &m.AuthorAvatarURL, &m.Content, &m.ReplyToID, &m.CreatedAt, &editedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}

		m.EditedAt = nullTimeToPtr(editedAt)
		messages = append(messages, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}

func (r *MessageRepository) FindByID(id string) (*models.Message, error) {
	var m models.Message
	var editedAt, deletedAt sql.NullTime

	err := r.db.QueryRow(
		`SELECT id, channel_id, author_id, content, reply_to_id, created_at, edited_at, deleted_at FROM messages WHERE id = ?`,
		id,
	).Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Content, &m.ReplyToID, &m.CreatedAt, &editedAt, &deletedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}

	m.EditedAt = nullTimeToPtr(editedAt)
	m.DeletedAt = nullTimeToPtr(deletedAt)

	return &m, nil
}

// FindByIDWithAuthor is FindByID plus the author's display name, joined the
// same way GetHistory does it, so callers building a reply-to preview don't
// need a second lookup against the user repository.
func (r *MessageRepository) FindByIDWithAuthor(id string) (*models.Message, error) {
	var m models.Message
	var editedAt, deletedAt sql.NullTime

	err := r.db.QueryRow(
		`SELECT m.id, m.channel_id, m.author_id, u.username, m.content, m.reply_to_id, m.created_at, m.edited_at, m.deleted_at
		FROM messages m
		LEFT JOIN users u ON m.author_id = u.id
		WHERE m.id = ?`,
		id,
	).Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.AuthorName, &m.Content, &m.ReplyToID, &m.CreatedAt, &editedAt, &deletedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}

	m.EditedAt = nullTimeToPtr(editedAt)
	m.DeletedAt = nullTimeToPtr(deletedAt)

	return &m, nil
}

func (r *MessageRepository) Edit(id, content string) (*models.Message, error) {
	now := time.Now().UTC()
	result, err := r.db.Exec(
		`UPDATE messages SET content = ?, edited_at = ? WHERE id = ? AND deleted_at IS NULL`,
		content, now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("editing message: %w", err)
	}
	if err := checkRowsAffected(result); err != nil {
		return nil, err
	}
	return r.FindByID(id)
}

func (r *MessageRepository) Delete(id string) error {
	result, err := r.db.Exec(
		`UPDATE messages SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	return checkRowsAffected(result)
}
