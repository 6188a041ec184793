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

const blobColumns = `id, parent_id, name, mimetype, size, sha1, md5, ctime, dtime`

// BlobRepository handles database operations for blobs
type BlobRepository struct {
	db *db.DB
}

// NewBlobRepository creates a new blob repository
func NewBlobRepository(db *db.DB) *BlobRepository {
	return &BlobRepository{db: db}
}

// Insert inserts a new blob row
func (r *BlobRepository) Insert(ctx context.Context, blob *models.Blob) error {
	query := `
		INSERT INTO blob (id, parent_id, name, mimetype, size, sha1, md5, ctime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(ctx, query,
		blob.ID,
		blob.ParentID,
		blob.Name,
		blob.Mimetype,
		blob.Size,
		blob.SHA1,
		blob.MD5,
		blob.CTime,
	)

	if err != nil {
		return fmt.Errorf("failed to insert blob: %w", err)
	}

	return nil
}

// InsertSuperseding inserts a variant blob after soft-deleting the live
// occupant of its (parent_id, name) slot, in one transaction. Readers may
// observe either occupant mid-flight but never a slot with two live rows
// after commit.
func (r *BlobRepository) InsertSuperseding(ctx context.Context, blob *models.Blob) error {
	if blob.ParentID == nil || blob.Name == nil {
		return fmt.Errorf("superseding insert requires a variant blob")
	}

	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE blob SET dtime = $1 WHERE parent_id = $2 AND name = $3 AND dtime IS NULL`,
			time.Now(), *blob.ParentID, *blob.Name,
		)
		if err != nil {
			return fmt.Errorf("failed to supersede slot occupant: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO blob (id, parent_id, name, mimetype, size, sha1, md5, ctime)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			blob.ID, blob.ParentID, blob.Name, blob.Mimetype,
			blob.Size, blob.SHA1, blob.MD5, blob.CTime,
		)
		if err != nil {
			return fmt.Errorf("failed to insert variant blob: %w", err)
		}

		return nil
	})

	if err != nil {
		return fmt.Errorf("failed to insert superseding blob: %w", err)
	}

	return nil
}

// GetByID retrieves a blob by its ID
func (r *BlobRepository) GetByID(ctx context.Context, id string) (*models.Blob, error) {
	query := `SELECT ` + blobColumns + ` FROM blob WHERE id = $1`

	blob := &models.Blob{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&blob.ID,
		&blob.ParentID,
		&blob.Name,
		&blob.Mimetype,
		&blob.Size,
		&blob.SHA1,
		&blob.MD5,
		&blob.CTime,
		&blob.DTime,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}

	return blob, nil
}

// FindDuplicate looks up a live primary blob with an equal
// (size, sha1, md5) triple. Returns nil when no duplicate exists.
func (r *BlobRepository) FindDuplicate(ctx context.Context, size int64, sha1, md5 string) (*models.Blob, error) {
	query := `
		SELECT ` + blobColumns + `
		FROM blob
		WHERE parent_id IS NULL AND dtime IS NULL
		  AND size = $1 AND sha1 = $2 AND md5 = $3
		ORDER BY ctime
		LIMIT 1
	`

	blob := &models.Blob{}
	err := r.db.QueryRow(ctx, query, size, sha1, md5).Scan(
		&blob.ID,
		&blob.ParentID,
		&blob.Name,
		&blob.Mimetype,
		&blob.Size,
		&blob.SHA1,
		&blob.MD5,
		&blob.CTime,
		&blob.DTime,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find duplicate blob: %w", err)
	}

	return blob, nil
}

// FindVariant retrieves the live variant occupying a (parent_id, name)
// slot. Returns nil when the slot is empty.
func (r *BlobRepository) FindVariant(ctx context.Context, parentID, name string) (*models.Blob, error) {
	query := `
		SELECT ` + blobColumns + `
		FROM blob
		WHERE parent_id = $1 AND name = $2 AND dtime IS NULL
		LIMIT 1
	`

	blob := &models.Blob{}
	err := r.db.QueryRow(ctx, query, parentID, name).Scan(
		&blob.ID,
		&blob.ParentID,
		&blob.Name,
		&blob.Mimetype,
		&blob.Size,
		&blob.SHA1,
		&blob.MD5,
		&blob.CTime,
		&blob.DTime,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find variant blob: %w", err)
	}

	return blob, nil
}

// SoftDelete marks a blob for deferred deletion. Returns true if this call
// set the marker, false if the blob was already deleted. Idempotent.
func (r *BlobRepository) SoftDelete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE blob SET dtime = $1 WHERE id = $2 AND dtime IS NULL`,
		time.Now(), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to soft-delete blob: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ListExpired lists blobs whose soft-delete marker is older than the cutoff
func (r *BlobRepository) ListExpired(ctx context.Context, cutoff time.Time) ([]*models.Blob, error) {
	query := `
		SELECT ` + blobColumns + `
		FROM blob
		WHERE dtime IS NOT NULL AND dtime < $1
	`

	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired blobs: %w", err)
	}
	defer rows.Close()

	return scanBlobs(rows)
}

// ListVariants lists all variant children of a blob, live or deleted
func (r *BlobRepository) ListVariants(ctx context.Context, parentID string) ([]*models.Blob, error) {
	query := `SELECT ` + blobColumns + ` FROM blob WHERE parent_id = $1`

	rows, err := r.db.Query(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list variant blobs: %w", err)
	}
	defer rows.Close()

	return scanBlobs(rows)
}

// DeleteRow removes a blob's metadata row. Reaper-only; missing rows are
// not an error so interrupted cycles can re-run.
func (r *BlobRepository) DeleteRow(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM blob WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete blob row: %w", err)
	}
	return nil
}

func scanBlobs(rows pgx.Rows) ([]*models.Blob, error) {
	var blobs []*models.Blob
	for rows.Next() {
		blob := &models.Blob{}
		err := rows.Scan(
			&blob.ID,
			&blob.ParentID,
			&blob.Name,
			&blob.Mimetype,
			&blob.Size,
			&blob.SHA1,
			&blob.MD5,
			&blob.CTime,
			&blob.DTime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan blob: %w", err)
		}
		blobs = append(blobs, blob)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blobs: %w", err)
	}

	return blobs, nil
}
