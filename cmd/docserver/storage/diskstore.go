// Package storage implements the durable byte store behind the blob
// metadata layer. Payloads are keyed by opaque blob id and fanned out
// over two directory levels so no single directory grows unbounded.
//
// Writes are staged: bytes stream into a temp file while size, sha1 and
// md5 accumulate in one pass, then Place moves the staged file into its
// final location. A blob id therefore never resolves to partial bytes.
package storage

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const stagingDirName = ".staging"

// DiskStore stores blob payloads on the local filesystem
type DiskStore struct {
	root    string
	staging string
}

// NewDiskStore creates the store layout under root
func NewDiskStore(root string) (*DiskStore, error) {
	staging := filepath.Join(root, stagingDirName)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	return &DiskStore{
		root:    root,
		staging: staging,
	}, nil
}

// Staged is an uncommitted payload with its one-pass digest results
type Staged struct {
	Path string
	Size int64
	SHA1 string
	MD5  string
}

// Stage streams r into a temp file, computing size, sha1 and md5 while
// the bytes pass through. The caller owns the staged file and must either
// hand it to Place or Discard it.
func (s *DiskStore) Stage(r io.Reader) (*Staged, error) {
	tmp, err := os.CreateTemp(s.staging, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staged file: %w", err)
	}

	sha := sha1.New()
	sum := md5.New()

	size, err := io.Copy(io.MultiWriter(tmp, sha, sum), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to stage payload: %w", err)
	}

	return &Staged{
		Path: tmp.Name(),
		Size: size,
		SHA1: hex.EncodeToString(sha.Sum(nil)),
		MD5:  hex.EncodeToString(sum.Sum(nil)),
	}, nil
}

// StageFile stages an existing file (e.g. a transcoder's output) by
// reading it through the digest pipeline.
func (s *DiskStore) StageFile(path string) (*Staged, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file for staging: %w", err)
	}
	defer f.Close()

	return s.Stage(f)
}

// DigestFile computes size, sha1 and md5 of a file without staging it
func DigestFile(path string) (int64, string, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", "", fmt.Errorf("failed to open file for digest: %w", err)
	}
	defer f.Close()

	sha := sha1.New()
	sum := md5.New()

	size, err := io.Copy(io.MultiWriter(sha, sum), f)
	if err != nil {
		return 0, "", "", fmt.Errorf("failed to digest file: %w", err)
	}

	return size, hex.EncodeToString(sha.Sum(nil)), hex.EncodeToString(sum.Sum(nil)), nil
}

// Place moves a staged file into its durable location keyed by blob id.
// Rename is atomic within the store; a cross-device source falls back to
// copy-then-remove.
func (s *DiskStore) Place(staged *Staged, blobID string) error {
	dest := s.path(blobID)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}

	err := os.Rename(staged.Path, dest)
	if err != nil && isCrossDevice(err) {
		err = copyFile(staged.Path, dest)
		if err == nil {
			os.Remove(staged.Path)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to place blob %s: %w", blobID, err)
	}

	return nil
}

// Open returns the payload for a blob id. The *os.File satisfies
// io.ReadSeeker, which is what gives handlers their range support.
func (s *DiskStore) Open(blobID string) (*os.File, error) {
	f, err := os.Open(s.path(blobID))
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", blobID, err)
	}
	return f, nil
}

// Remove deletes a blob's payload. Missing payloads are not an error so
// an interrupted reaper cycle can re-run.
func (s *DiskStore) Remove(blobID string) error {
	err := os.Remove(s.path(blobID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove blob %s: %w", blobID, err)
	}
	return nil
}

// Discard removes a staged file that will not be placed
func (s *DiskStore) Discard(staged *Staged) {
	if staged != nil && staged.Path != "" {
		os.Remove(staged.Path)
	}
}

// path fans blob ids out over two directory levels
func (s *DiskStore) path(blobID string) string {
	if len(blobID) < 4 {
		return filepath.Join(s.root, "xx", "xx", blobID)
	}
	return filepath.Join(s.root, blobID[0:2], blobID[2:4], blobID)
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	return errors.As(err, &linkErr)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
	}
	return err
}
