package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/docvault/docvault/cmd/docserver/models"
	"github.com/docvault/docvault/cmd/docserver/storage"
	"github.com/docvault/docvault/common/logger"
)

// BlobRows is the metadata-store surface the blob services need.
// *repository.BlobRepository is the production implementation; tests
// substitute an in-memory fake.
type BlobRows interface {
	Insert(ctx context.Context, blob *models.Blob) error
	InsertSuperseding(ctx context.Context, blob *models.Blob) error
	GetByID(ctx context.Context, id string) (*models.Blob, error)
	FindDuplicate(ctx context.Context, size int64, sha1, md5 string) (*models.Blob, error)
	FindVariant(ctx context.Context, parentID, name string) (*models.Blob, error)
	SoftDelete(ctx context.Context, id string) (bool, error)
	ListExpired(ctx context.Context, cutoff time.Time) ([]*models.Blob, error)
	ListVariants(ctx context.Context, parentID string) ([]*models.Blob, error)
	DeleteRow(ctx context.Context, id string) error
}

// BlobStore handles content-addressable blob storage with deduplication
// and deferred deletion.
//
// Reads stream straight off disk with no hash re-verification; the
// (size, sha1, md5) triple is a dedup signal under a non-adversarial
// upload model, not an integrity guarantee.
type BlobStore struct {
	repo BlobRows
	disk *storage.DiskStore
	log  *logger.Logger
}

// NewBlobStore creates a new blob store service
func NewBlobStore(repo BlobRows, disk *storage.DiskStore, log *logger.Logger) *BlobStore {
	return &BlobStore{
		repo: repo,
		disk: disk,
		log:  log,
	}
}

// BlobMeta describes a payload about to be finalized. Zero hash fields
// mean "compute from the staged file".
type BlobMeta struct {
	ParentID *string
	Name     *string
	Mimetype string
	Size     int64
	SHA1     string
	MD5      string
}

// Prepare streams input into staging while computing size, sha1 and md5
// in one pass. A nil reader or an empty stream yields (nil, nil): zeroed
// metadata, nothing staged.
func (s *BlobStore) Prepare(ctx context.Context, r io.Reader) (*storage.Staged, error) {
	if r == nil {
		return nil, nil
	}

	staged, err := s.disk.Stage(r)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare blob: %w", err)
	}

	// Bodyless uploads arrive as empty streams; they must not mint blobs.
	if staged.Size == 0 {
		s.disk.Discard(staged)
		return nil, nil
	}

	s.log.Debug("staged payload", "size", staged.Size, "sha1", staged.SHA1)
	return staged, nil
}

// Finalize turns a staged payload into a durable blob. Bytes are placed
// under the new blob id before the metadata row is written, so a row can
// never reference missing bytes. Variant blobs supersede the live
// occupant of their (parent_id, name) slot inside the insert transaction.
func (s *BlobStore) Finalize(ctx context.Context, staged *storage.Staged, meta BlobMeta) (*models.Blob, error) {
	if staged == nil {
		return nil, fmt.Errorf("nothing staged to finalize")
	}

	if meta.SHA1 == "" || meta.MD5 == "" {
		size, sha1sum, md5sum, err := storage.DigestFile(staged.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to digest staged file: %w", err)
		}
		meta.Size, meta.SHA1, meta.MD5 = size, sha1sum, md5sum
	}

	blob := &models.Blob{
		ID:       uuid.New().String(),
		ParentID: meta.ParentID,
		Name:     meta.Name,
		Mimetype: meta.Mimetype,
		Size:     meta.Size,
		SHA1:     meta.SHA1,
		MD5:      meta.MD5,
		CTime:    time.Now(),
	}

	// Placement precedes the metadata write, never the reverse.
	if err := s.disk.Place(staged, blob.ID); err != nil {
		s.disk.Discard(staged)
		return nil, fmt.Errorf("failed to place blob bytes: %w", err)
	}

	var err error
	if blob.ParentID != nil && blob.Name != nil {
		err = s.repo.InsertSuperseding(ctx, blob)
	} else {
		err = s.repo.Insert(ctx, blob)
	}
	if err != nil {
		// Orphaned bytes are harmless; remove them anyway.
		if rmErr := s.disk.Remove(blob.ID); rmErr != nil {
			s.log.Warn("failed to remove orphaned payload", "blob_id", blob.ID, "error", rmErr)
		}
		return nil, err
	}

	s.log.Info("finalized blob",
		"blob_id", blob.ID,
		"size", blob.Size,
		"mimetype", blob.Mimetype,
		"variant", blob.Name != nil,
	)

	return blob, nil
}

// FindDuplicate looks up a live primary blob matching the staged
// payload's (size, sha1, md5) triple. Callers may link the returned blob
// instead of finalizing a second copy of the same bytes.
func (s *BlobStore) FindDuplicate(ctx context.Context, staged *storage.Staged) (*models.Blob, error) {
	if staged == nil {
		return nil, nil
	}

	dup, err := s.repo.FindDuplicate(ctx, staged.Size, staged.SHA1, staged.MD5)
	if err != nil {
		return nil, err
	}

	if dup != nil {
		s.log.Info("dedup hit", "blob_id", dup.ID, "size", dup.Size)
	}

	return dup, nil
}

// Discard drops a staged payload that will not be finalized
func (s *BlobStore) Discard(staged *storage.Staged) {
	s.disk.Discard(staged)
}

// SoftDelete marks a blob for deferred physical deletion. Idempotent;
// returns true only for the call that set the marker.
func (s *BlobStore) SoftDelete(ctx context.Context, id string) (bool, error) {
	marked, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		return false, err
	}
	if marked {
		s.log.Info("soft-deleted blob", "blob_id", id)
	}
	return marked, nil
}

// GetBlob retrieves blob metadata by id
func (s *BlobStore) GetBlob(ctx context.Context, id string) (*models.Blob, error) {
	blob, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// FindVariant returns the live variant in a (parent_id, name) slot, or nil
func (s *BlobStore) FindVariant(ctx context.Context, parentID, name string) (*models.Blob, error) {
	return s.repo.FindVariant(ctx, parentID, name)
}

// StreamOf opens a range-capable stream of a live blob's bytes
func (s *BlobStore) StreamOf(ctx context.Context, id string) (*os.File, *models.Blob, error) {
	blob, err := s.GetBlob(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if blob.IsDeleted() {
		return nil, nil, ErrNotFound
	}

	f, err := s.disk.Open(blob.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stream blob %s: %w", id, err)
	}

	return f, blob, nil
}

// StoreBytes stages and finalizes an in-memory payload. Used for derived
// renditions (thumbnails, transcode output) whose bytes already exist.
func (s *BlobStore) StoreBytes(ctx context.Context, b []byte, meta BlobMeta) (*models.Blob, error) {
	staged, err := s.Prepare(ctx, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	return s.Finalize(ctx, staged, meta)
}

// StoreFile stages and finalizes an existing file on disk
func (s *BlobStore) StoreFile(ctx context.Context, path string, meta BlobMeta) (*models.Blob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open payload file: %w", err)
	}
	defer f.Close()

	staged, err := s.Prepare(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.Finalize(ctx, staged, meta)
}
