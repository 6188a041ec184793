package service

import (
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
)

// MemberStream presents byte-range semantics over one forward-only
// decompressing archive member. Forward seeks read and drop intervening
// bytes; backward seeks reopen the member from its start and replay up
// to the target. That replay cost is the deliberate trade-off — there is
// no true random access over a streaming decompressor.
type MemberStream struct {
	open    func() (io.ReadCloser, error)
	closers []io.Closer

	rc   io.ReadCloser
	pos  int64
	size int64
}

// OpenMember opens memberPath inside the zip archive stored as blobID
func (a *ArchiveService) OpenMember(ctx context.Context, blobID, memberPath string) (*MemberStream, error) {
	f, blob, err := a.blobs.StreamOf(ctx, blobID)
	if err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(f, blob.Size)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	var member *zip.File
	for _, file := range zr.File {
		if file.Name == memberPath {
			member = file
			break
		}
	}
	if member == nil {
		f.Close()
		return nil, ErrNotFound
	}

	rc, err := member.Open()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open archive member: %w", err)
	}

	return &MemberStream{
		open:    member.Open,
		closers: []io.Closer{f},
		rc:      rc,
		size:    int64(member.UncompressedSize64),
	}, nil
}

// Size returns the member's uncompressed size
func (m *MemberStream) Size() int64 {
	return m.size
}

// Read reads from the current position
func (m *MemberStream) Read(p []byte) (int, error) {
	n, err := m.rc.Read(p)
	m.pos += int64(n)
	return n, err
}

// Seek repositions the stream. Forward movement discards bytes from the
// decompressor; backward movement reopens the member and replays.
func (m *MemberStream) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = m.pos + offset
	case io.SeekEnd:
		target = m.size + offset
	default:
		return 0, fmt.Errorf("invalid seek whence %d", whence)
	}

	if target < 0 {
		return 0, fmt.Errorf("negative seek position %d", target)
	}

	if target >= m.size && target != m.pos {
		// End probes (ServeContent sizing) don't need a full replay;
		// reads at or past the end only ever see EOF.
		if err := m.rc.Close(); err != nil {
			return 0, err
		}
		m.rc = io.NopCloser(io.MultiReader())
		m.pos = target
		return m.pos, nil
	}

	if target < m.pos {
		// Rewind by replay: restart the decompression stream.
		if err := m.rc.Close(); err != nil {
			return 0, err
		}
		rc, err := m.open()
		if err != nil {
			return 0, fmt.Errorf("failed to reopen archive member: %w", err)
		}
		m.rc = rc
		m.pos = 0
	}

	if target > m.pos {
		n, err := io.CopyN(io.Discard, m.rc, target-m.pos)
		m.pos += n
		if err != nil && err != io.EOF {
			return 0, err
		}
	}

	return m.pos, nil
}

// Close releases the member stream and the underlying archive
func (m *MemberStream) Close() error {
	err := m.rc.Close()
	for _, c := range m.closers {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
