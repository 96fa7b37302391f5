package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/voxlab/speechforge/internal/models"
)

// CreateRequest inserts a new synthesis request with status pending.
func (db *DB) CreateRequest(ctx context.Context, req *models.SynthesisRequest) error {
	query := `
		INSERT INTO audio_requests (user_id, user_email, text, text_language, model_name, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	req.Status = models.RequestStatusPending

	return db.QueryRowContext(
		ctx, query,
		req.UserID, req.UserEmail, req.Text, req.Language, req.ModelName, req.Status,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
}

// GetRequest retrieves a synthesis request by ID.
func (db *DB) GetRequest(ctx context.Context, id int64) (*models.SynthesisRequest, error) {
	query := `
		SELECT id, user_id, user_email, text, text_language, model_name, status, created_at, updated_at
		FROM audio_requests
		WHERE id = $1
	`

	req := &models.SynthesisRequest{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&req.ID, &req.UserID, &req.UserEmail, &req.Text, &req.Language,
		&req.ModelName, &req.Status, &req.CreatedAt, &req.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("request not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	return req, nil
}

// GetRequestStatus reads only the status column.
func (db *DB) GetRequestStatus(ctx context.Context, id int64) (models.RequestStatus, error) {
	var status models.RequestStatus
	err := db.QueryRowContext(ctx, `SELECT status FROM audio_requests WHERE id = $1`, id).Scan(&status)

	if err == sql.ErrNoRows {
		return "", fmt.Errorf("request not found")
	}
	if err != nil {
		return "", fmt.Errorf("failed to get request status: %w", err)
	}

	return status, nil
}

// MarkProcessing transitions a pending request to processing. The WHERE clause
// keeps the transition monotonic: a request that already left pending is never
// pulled back.
func (db *DB) MarkProcessing(ctx context.Context, id int64) error {
	query := `
		UPDATE audio_requests
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	_, err := db.ExecContext(ctx, query, models.RequestStatusProcessing, time.Now(), id, models.RequestStatusPending)
	return err
}

// MarkCompleted transitions a processing request to completed. It reports
// whether the row was actually updated: false means the request already
// reached a terminal state (typically force-failed by the watchdog), in which
// case the late completion must be discarded by the caller.
func (db *DB) MarkCompleted(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE audio_requests
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := db.ExecContext(ctx, query, models.RequestStatusCompleted, time.Now(), id, models.RequestStatusProcessing)
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkFailed transitions a non-terminal request to failed.
func (db *DB) MarkFailed(ctx context.Context, id int64) error {
	query := `
		UPDATE audio_requests
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status NOT IN ($4, $5)
	`
	_, err := db.ExecContext(ctx, query,
		models.RequestStatusFailed, time.Now(), id,
		models.RequestStatusCompleted, models.RequestStatusFailed,
	)
	return err
}

// FailIfProcessing force-fails a request only if it is still processing.
// Used by the watchdog; reports whether the row was updated so the caller can
// tell a real force-fail from a request that finished first.
func (db *DB) FailIfProcessing(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE audio_requests
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := db.ExecContext(ctx, query, models.RequestStatusFailed, time.Now(), id, models.RequestStatusProcessing)
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
