package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/docvault/docvault/cmd/docserver/models"
	"github.com/docvault/docvault/common/db"
)

const nodeColumns = `id, parent_id, name, type, size, mtime, rev, owner_id, blob_id, has_thumbnail`

// NodeRepository handles database operations for tree nodes
type NodeRepository struct {
	db *db.DB
}

// NewNodeRepository creates a new node repository
func NewNodeRepository(db *db.DB) *NodeRepository {
	return &NodeRepository{db: db}
}

// Insert inserts a new node
func (r *NodeRepository) Insert(ctx context.Context, node *models.Node) error {
	query := `
		INSERT INTO node (id, parent_id, name, type, size, mtime, rev, owner_id, blob_id, has_thumbnail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		node.ID,
		node.ParentID,
		node.Name,
		node.Type,
		node.Size,
		node.MTime,
		node.Rev,
		node.OwnerID,
		node.BlobID,
		node.HasThumbnail,
	)

	if err != nil {
		return fmt.Errorf("failed to insert node: %w", err)
	}

	return nil
}

// GetByID retrieves a node by its ID
func (r *NodeRepository) GetByID(ctx context.Context, id string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM node WHERE id = $1`

	node := &models.Node{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&node.ID,
		&node.ParentID,
		&node.Name,
		&node.Type,
		&node.Size,
		&node.MTime,
		&node.Rev,
		&node.OwnerID,
		&node.BlobID,
		&node.HasThumbnail,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}

	return node, nil
}

// ListChildren lists the direct children of a node, name-ordered
func (r *NodeRepository) ListChildren(ctx context.Context, parentID string) ([]*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM node WHERE parent_id = $1 ORDER BY name`

	rows, err := r.db.Query(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// FindChildByName retrieves the child with the given (case-sensitive) name.
// Returns nil when no such child exists.
func (r *NodeRepository) FindChildByName(ctx context.Context, parentID, name string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM node WHERE parent_id = $1 AND name = $2 LIMIT 1`

	node := &models.Node{}
	err := r.db.QueryRow(ctx, query, parentID, name).Scan(
		&node.ID,
		&node.ParentID,
		&node.Name,
		&node.Type,
		&node.Size,
		&node.MTime,
		&node.Rev,
		&node.OwnerID,
		&node.BlobID,
		&node.HasThumbnail,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find child by name: %w", err)
	}

	return node, nil
}

// ReplaceBlob relinks a node to a new primary blob in one transaction:
// rev increments by exactly one, mtime and size refresh, and the
// superseded blob becomes reaper work unless another node still shares
// it. Returns the previous blob id, if any.
func (r *NodeRepository) ReplaceBlob(ctx context.Context, nodeID, newBlobID string, size int64) (*string, error) {
	var oldBlobID *string

	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`SELECT blob_id FROM node WHERE id = $1 FOR UPDATE`,
			nodeID,
		).Scan(&oldBlobID)
		if err != nil {
			return fmt.Errorf("failed to lock node for replace: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE node
			 SET blob_id = $1, size = $2, mtime = $3, rev = rev + 1, has_thumbnail = false
			 WHERE id = $4`,
			newBlobID, size, time.Now(), nodeID,
		)
		if err != nil {
			return fmt.Errorf("failed to relink node blob: %w", err)
		}

		// Dedup can leave other nodes linked to the old blob; it only
		// becomes reaper work once no node row references it.
		if oldBlobID != nil && *oldBlobID != newBlobID {
			_, err = tx.Exec(ctx,
				`UPDATE blob SET dtime = $1
				 WHERE id = $2 AND dtime IS NULL
				   AND NOT EXISTS (SELECT 1 FROM node WHERE blob_id = $2)`,
				time.Now(), *oldBlobID,
			)
			if err != nil {
				return fmt.Errorf("failed to soft-delete replaced blob: %w", err)
			}
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to replace node content: %w", err)
	}

	return oldBlobID, nil
}

// CountByBlob counts the nodes whose primary blob is blobID. Dedup
// shares one blob across many nodes; deletion paths consult this before
// retiring the bytes.
func (r *NodeRepository) CountByBlob(ctx context.Context, blobID string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM node WHERE blob_id = $1`, blobID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count blob references: %w", err)
	}
	return count, nil
}

// Rename changes a node's name
func (r *NodeRepository) Rename(ctx context.Context, id, name string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE node SET name = $1, mtime = $2 WHERE id = $3`,
		name, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to rename node: %w", err)
	}
	return nil
}

// Move reparents a node
func (r *NodeRepository) Move(ctx context.Context, id, newParentID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE node SET parent_id = $1, mtime = $2 WHERE id = $3`,
		newParentID, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to move node: %w", err)
	}
	return nil
}

// SetHasThumbnail flips the node's thumbnail flag
func (r *NodeRepository) SetHasThumbnail(ctx context.Context, id string, has bool) error {
	_, err := r.db.Exec(ctx,
		`UPDATE node SET has_thumbnail = $1 WHERE id = $2`,
		has, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set thumbnail flag: %w", err)
	}
	return nil
}

// Delete removes a node row. Children must already be gone; the caller
// (Item.Delete) owns the recursion order.
func (r *NodeRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM node WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}
	return nil
}

func scanNodes(rows pgx.Rows) ([]*models.Node, error) {
	var nodes []*models.Node
	for rows.Next() {
		node := &models.Node{}
		err := rows.Scan(
			&node.ID,
			&node.ParentID,
			&node.Name,
			&node.Type,
			&node.Size,
			&node.MTime,
			&node.Rev,
			&node.OwnerID,
			&node.BlobID,
			&node.HasThumbnail,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	return nodes, nil
}
