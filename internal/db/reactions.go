package db

import (
	"fmt"
	"time"

	"relay/internal/models"
)

type ReactionRepository struct {
	db *DB
}

func NewReactionRepository(db *DB) *ReactionRepository {
	return &ReactionRepository{db: db}
}

// Add inserts the (messageID, userID, emoji) reaction if absent; a repeat
// call is a no-op, per the idempotency invariant on the PUT reaction route.
func (r *ReactionRepository) Add(messageID, userID, emoji string) error {
	_, err := r.db.Exec(
		`INSERT INTO reactions (message_id, user_id, emoji, created_at) VALUES (?, ?, ?, ?)`,
		messageID, userID, emoji, time.Now().UTC(),
	)
	if err != nil && !IsUniqueConstraintError(err) {
		return fmt.Errorf("adding reaction: %w", err)
	}
	return nil
}

// Remove deletes the (messageID, userID, emoji) reaction if present; a
// repeat call (or one against a missing triple) succeeds silently, per the
// idempotency invariant on the DELETE reaction route.
func (r *ReactionRepository) Remove(messageID, userID, emoji string) error {
	_, err := r.db.Exec(
		`DELETE FROM reactions WHERE message_id = ? AND user_id = ? AND emoji = ?`,
		messageID, userID, emoji,
	)
	if err != nil {
		return fmt.Errorf("removing reaction: %w", err)
	}
	return nil
}

// ListForMessage returns the reaction sets (emoji -> reacting user IDs) for
// a single message, grouped for wire delivery.
func (r *ReactionRepository) ListForMessage(messageID string) ([]models.ReactionSet, error) {
	rows, err := r.db.Query(
		`SELECT emoji, user_id FROM reactions WHERE message_id = ? ORDER BY emoji, created_at`,
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying reactions: %w", err)
	}
	defer rows.Close()

	order := make([]string, 0)
	byEmoji := make(map[string]*models.ReactionSet)
	for rows.Next() {
		var emoji, userID string
		if err := rows.Scan(&emoji, &userID); err != nil {
			return nil, fmt.Errorf("scanning reaction: %w", err)
		}
		set, ok := byEmoji[emoji]
		if !ok {
			set = &models.ReactionSet{Emoji: emoji}
			byEmoji[emoji] = set
			order = append(order, emoji)
		}
		set.UserIDs = append(set.UserIDs, userID)
		set.Count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reactions: %w", err)
	}

	result := make([]models.ReactionSet, 0, len(order))
	for _, emoji := range order {
		result = append(result, *byEmoji[emoji])
	}
	return result, nil
}

// ListForMessages batches ListForMessage across a page of history so a
// single history fetch doesn't issue N+1 queries.
func (r *ReactionRepository) ListForMessages(messageIDs []string) (map[string][]models.ReactionSet, error) {
	result := make(map[string][]models.ReactionSet, len(messageIDs))
	if len(messageIDs) == 0 {
		return result, nil
	}

	query, args := inClauseQuery(
		`SELECT message_id, emoji, user_id FROM reactions WHERE message_id IN (%s) ORDER BY message_id, emoji, created_at`,
		messageIDs,
	)
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying reactions for messages: %w", err)
	}
	defer rows.Close()

	type key struct{ messageID, emoji string }
	order := make([]key, 0)
	byKey := make(map[key]*models.ReactionSet)
	for rows.Next() {
		var messageID, emoji, userID string
		if err := rows.Scan(&messageID, &emoji, &userID); err != nil {
			return nil, fmt.Errorf("scanning reaction row: %w", err)
		}
		k := key{messageID, emoji}
		set, ok := byKey[k]
		if !ok {
			set = &models.ReactionSet{Emoji: emoji}
			byKey[k] = set
			order = append(order, k)
		}
		set.UserIDs = append(set.UserIDs, userID)
		set.Count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reaction rows: %w", err)
	}

	for _, k := range order {
		result[k.messageID] = append(result[k.messageID], *byKey[k])
	}
	return result, nil
}
