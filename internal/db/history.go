package db

import (
	"context"
	"fmt"

	"github.com/voxlab/speechforge/internal/models"
)

// GetHistory returns a page of a user's synthesis requests, newest first,
// joined with the artifact URL where one exists.
func (db *DB) GetHistory(ctx context.Context, userID int64, filter models.HistoryFilter) ([]models.HistoryEntry, error) {
	query := `
		SELECT
			ar.id, ar.text, ar.text_language, ar.model_name, ar.status, ar.created_at,
			af.url
		FROM audio_requests ar
		LEFT JOIN audio_files af ON ar.id = af.request_id
		WHERE ar.user_id = $1
	`

	args := []interface{}{userID}

	if filter.Keyword != "" {
		args = append(args, "%"+filter.Keyword+"%")
		query += fmt.Sprintf(" AND ar.text ILIKE $%d", len(args))
	}
	if filter.ModelName != "" {
		args = append(args, filter.ModelName)
		query += fmt.Sprintf(" AND ar.model_name = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND ar.status = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY ar.created_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var entry models.HistoryEntry
		err := rows.Scan(
			&entry.ID, &entry.Text, &entry.Language, &entry.ModelName,
			&entry.Status, &entry.CreatedAt, &entry.DownloadURL,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// CountHistory returns the total matching rows for the same filter, for
// pagination.
func (db *DB) CountHistory(ctx context.Context, userID int64, filter models.HistoryFilter) (int, error) {
	query := `SELECT COUNT(*) FROM audio_requests ar WHERE ar.user_id = $1`
	args := []interface{}{userID}

	if filter.Keyword != "" {
		args = append(args, "%"+filter.Keyword+"%")
		query += fmt.Sprintf(" AND ar.text ILIKE $%d", len(args))
	}
	if filter.ModelName != "" {
		args = append(args, filter.ModelName)
		query += fmt.Sprintf(" AND ar.model_name = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND ar.status = $%d", len(args))
	}

	var total int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}

	return total, nil
}
