package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"relay/internal/models"
)

type LinkPreviewRepository struct {
	db *DB
}

func NewLinkPreviewRepository(db *DB) *LinkPreviewRepository {
	return &LinkPreviewRepository{db: db}
}

// Upsert stores or refreshes a preview row keyed by URL (dedup by URL, so
// two messages linking the same URL share one fetch).
func (r *LinkPreviewRepository) Upsert(url, title, description, imageURL, siteName string) (*models.LinkPreview, error) {
	existing, err := r.FindByURL(url)
	now := time.Now().UTC()
	if err == nil {
		_, execErr := r.db.Exec(
			`UPDATE link_previews SET title = ?, description = ?, image_url = ?, site_name = ?, fetched_at = ? WHERE id = ?`,
			title, description, imageURL, siteName, now, existing.ID,
		)
		if execErr != nil {
			return nil, fmt.Errorf("refreshing link preview: %w", execErr)
		}
		existing.Title, existing.Description, existing.ImageURL, existing.SiteName, existing.FetchedAt = title, description, imageURL, siteName, now
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	id, err := GenerateID("lnp")
	if err != nil {
		return nil, fmt.Errorf("generating link preview ID: %w", err)
	}
	_, err = r.db.Exec(
		`INSERT INTO link_previews (id, url, title, description, image_url, site_name, fetched_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, url, title, description, imageURL, siteName, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating link preview: %w", err)
	}

	return &models.LinkPreview{
		ID: id, URL: url, Title: title, Description: description,
		ImageURL: imageURL, SiteName: siteName, FetchedAt: now,
	}, nil
}

func (r *LinkPreviewRepository) FindByURL(url string) (*models.LinkPreview, error) {
	var p models.LinkPreview
	err := r.db.QueryRow(
		`SELECT id, url, title, description, image_url, site_name, fetched_at FROM link_previews WHERE url = ?`,
		url,
	).Scan(&p.ID, &p.URL, &p.Title, &p.Description, &p.ImageURL, &p.SiteName, &p.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying link preview: %w", err)
	}
	return &p, nil
}

func (r *LinkPreviewRepository) LinkToMessage(messageID, previewID string) error {
	_, err := r.db.Exec(
		`INSERT OR IGNORE INTO message_link_previews (message_id, link_preview_id) VALUES (?, ?)`,
		messageID, previewID,
	)
	if err != nil {
		return fmt.Errorf("linking preview to message: %w", err)
	}
	return nil
}

func (r *LinkPreviewRepository) ListForMessages(messageIDs []string) (map[string][]models.LinkPreview, error) {
	result := make(map[string][]models.LinkPreview, len(messageIDs))
	if len(messageIDs) == 0 {
		return result, nil
	}

	query, args := inClauseQuery(
		`SELECT mlp.message_id, lp.id, lp.url, lp.title, lp.description, lp.image_url, lp.site_name, lp.fetched_at
		 FROM message_link_previews mlp
		 JOIN link_previews lp ON mlp.link_preview_id = lp.id
		 WHERE mlp.message_id IN (%s)`,
		messageIDs,
	)
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying message link previews: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID string
		var p models.LinkPreview
		if err := rows.Scan(&messageID, &p.ID, &p.URL, &p.Title, &p.Description, &p.ImageURL, &p.SiteName, &p.FetchedAt); err != nil {
			return nil, fmt.Errorf("scanning message link preview: %w", err)
		}
		result[messageID] = append(result[messageID], p)
	}
	return result, rows.Err()
}
