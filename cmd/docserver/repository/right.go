package repository

import (
	"context"
	"fmt"

	"github.com/docvault/docvault/cmd/docserver/models"
	"github.com/docvault/docvault/common/db"
)

// RightRepository handles database operations for access-control entries
type RightRepository struct {
	db *db.DB
}

// NewRightRepository creates a new right repository
func NewRightRepository(db *db.DB) *RightRepository {
	return &RightRepository{db: db}
}

// Grant upserts a right entry
func (r *RightRepository) Grant(ctx context.Context, right *models.Right) error {
	query := `
		INSERT INTO node_right (node_id, subject_type, subject_id, read, write)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (node_id, subject_type, subject_id)
		DO UPDATE SET read = EXCLUDED.read, write = EXCLUDED.write
	`

	_, err := r.db.Exec(ctx, query,
		right.NodeID,
		right.SubjectType,
		right.SubjectID,
		right.Read,
		right.Write,
	)

	if err != nil {
		return fmt.Errorf("failed to grant right: %w", err)
	}

	return nil
}

// ListForNode lists all rights attached to a node
func (r *RightRepository) ListForNode(ctx context.Context, nodeID string) ([]*models.Right, error) {
	query := `
		SELECT node_id, subject_type, subject_id, read, write
		FROM node_right
		WHERE node_id = $1
	`

	rows, err := r.db.Query(ctx, query, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rights: %w", err)
	}
	defer rows.Close()

	var rights []*models.Right
	for rows.Next() {
		right := &models.Right{}
		err := rows.Scan(
			&right.NodeID,
			&right.SubjectType,
			&right.SubjectID,
			&right.Read,
			&right.Write,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan right: %w", err)
		}
		rights = append(rights, right)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rights: %w", err)
	}

	return rights, nil
}
