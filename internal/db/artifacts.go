package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/voxlab/speechforge/internal/models"
)

// CreateArtifact records a durably stored audio file for a request.
func (db *DB) CreateArtifact(ctx context.Context, artifact *models.AudioArtifact) error {
	query := `
		INSERT INTO audio_files (request_id, file_name, url)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	return db.QueryRowContext(
		ctx, query,
		artifact.RequestID, artifact.FileName, artifact.URL,
	).Scan(&artifact.ID, &artifact.CreatedAt)
}

// GetArtifactByRequest retrieves the artifact for a request, if any.
func (db *DB) GetArtifactByRequest(ctx context.Context, requestID int64) (*models.AudioArtifact, error) {
	query := `
		SELECT id, request_id, file_name, url, created_at
		FROM audio_files
		WHERE request_id = $1
	`

	artifact := &models.AudioArtifact{}
	err := db.QueryRowContext(ctx, query, requestID).Scan(
		&artifact.ID, &artifact.RequestID, &artifact.FileName, &artifact.URL, &artifact.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("artifact not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	return artifact, nil
}
