package db

import (
	"database/sql"
	"fmt"
	"time"

	"relay/internal/models"
)

type AttachmentRepository struct {
	db *DB
}

func NewAttachmentRepository(db *DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

func (r *AttachmentRepository) Create(messageID, blobID, mimeType, originalName string, sizeBytes int64, width, height *int) (*models.Attachment, error) {
	id, err := GenerateID("att")
	if err != nil {
		return nil, fmt.Errorf("generating attachment ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO attachments (id, message_id, blob_id, mime_type, size_bytes, original_name, width, height, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, messageID, blobID, mimeType, sizeBytes, originalName, width, height, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating attachment: %w", err)
	}

	return &models.Attachment{
		ID:           id,
		MessageID:    messageID,
		BlobID:       blobID,
		MimeType:     mimeType,
		SizeBytes:    sizeBytes,
		OriginalName: originalName,
		Width:        width,
		Height:       height,
		CreatedAt:    now,
	}, nil
}

func (r *AttachmentRepository) ListForMessages(messageIDs []string) (map[string][]models.Attachment, error) {
	result := make(map[string][]models.Attachment, len(messageIDs))
	if len(messageIDs) == 0 {
		return result, nil
	}

	query, args := inClauseQuery(
		`SELECT id, message_id, blob_id, mime_type, size_bytes, original_name, width, height, created_at
		 FROM attachments WHERE message_id IN (%s) ORDER BY created_at ASC`,
		messageIDs,
	)
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.Attachment
		var width, height sql.NullInt64
		if err := rows.Scan(&a.ID, &a.MessageID, &a.BlobID, &a.MimeType, &a.SizeBytes, &a.OriginalName, &width, &height, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning attachment: %w", err)
		}
		if width.Valid {
			w := int(width.Int64)
			a.Width = &w
		}
		if height.Valid {
			h := int(height.Int64)
			a.Height = &h
		}
		result[a.MessageID] = append(result[a.MessageID], a)
	}
	return result, rows.Err()
}

// OrphanedCreatedBefore returns attachment blob IDs whose message no longer exists
// and which predate cutoff, for an operator-triggered orphan sweep.
func (r *AttachmentRepository) OrphanedCreatedBefore(cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.db.Query(
		`SELECT a.blob_id FROM attachments a
		 LEFT JOIN messages m ON a.message_id = m.id
		 WHERE m.id IS NULL AND a.created_at < ? LIMIT ?`,
		cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying orphaned attachments: %w", err)
	}
	defer rows.Close()

	var blobIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning orphaned attachment: %w", err)
		}
		blobIDs = append(blobIDs, id)
	}
	return blobIDs, rows.Err()
}
