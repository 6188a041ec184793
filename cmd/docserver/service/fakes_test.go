package service

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/docvault/docvault/cmd/docserver/models"
	"github.com/docvault/docvault/common/logger"
)

func testLogger() *logger.Logger {
	return logger.New("error", "text")
}

// fakeBlobRows is an in-memory BlobRows implementation
type fakeBlobRows struct {
	mu    sync.Mutex
	blobs map[string]*models.Blob
}

func newFakeBlobRows() *fakeBlobRows {
	return &fakeBlobRows{blobs: make(map[string]*models.Blob)}
}

func (f *fakeBlobRows) Insert(ctx context.Context, blob *models.Blob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *blob
	f.blobs[blob.ID] = &cp
	return nil
}

func (f *fakeBlobRows) InsertSuperseding(ctx context.Context, blob *models.Blob) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	for _, b := range f.blobs {
		if b.DTime == nil && b.ParentID != nil && b.Name != nil &&
			blob.ParentID != nil && blob.Name != nil &&
			*b.ParentID == *blob.ParentID && *b.Name == *blob.Name {
			t := now
			b.DTime = &t
		}
	}

	cp := *blob
	f.blobs[blob.ID] = &cp
	return nil
}

func (f *fakeBlobRows) GetByID(ctx context.Context, id string) (*models.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBlobRows) FindDuplicate(ctx context.Context, size int64, sha1, md5 string) (*models.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.blobs {
		if b.ParentID == nil && b.DTime == nil && b.Size == size && b.SHA1 == sha1 && b.MD5 == md5 {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeBlobRows) FindVariant(ctx context.Context, parentID, name string) (*models.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.blobs {
		if b.DTime == nil && b.ParentID != nil && b.Name != nil && *b.ParentID == parentID && *b.Name == name {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeBlobRows) SoftDelete(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[id]
	if !ok || b.DTime != nil {
		return false, nil
	}
	now := time.Now()
	b.DTime = &now
	return true, nil
}

func (f *fakeBlobRows) ListExpired(ctx context.Context, cutoff time.Time) ([]*models.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Blob
	for _, b := range f.blobs {
		if b.DTime != nil && b.DTime.Before(cutoff) {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeBlobRows) ListVariants(ctx context.Context, parentID string) ([]*models.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Blob
	for _, b := range f.blobs {
		if b.ParentID != nil && *b.ParentID == parentID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeBlobRows) DeleteRow(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, id)
	return nil
}

func (f *fakeBlobRows) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs)
}

// fakeNodeRows is an in-memory NodeRows implementation
type fakeNodeRows struct {
	mu    sync.Mutex
	nodes map[string]*models.Node

	softDelete func(ctx context.Context, blobID string)
}

func newFakeNodeRows() *fakeNodeRows {
	return &fakeNodeRows{nodes: make(map[string]*models.Node)}
}

func (f *fakeNodeRows) Insert(ctx context.Context, node *models.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *node
	f.nodes[node.ID] = &cp
	return nil
}

func (f *fakeNodeRows) GetByID(ctx context.Context, id string) (*models.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *n
	return &cp, nil
}

func (f *fakeNodeRows) ListChildren(ctx context.Context, parentID string) ([]*models.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Node
	for _, n := range f.nodes {
		if n.ParentID != nil && *n.ParentID == parentID {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeNodeRows) FindChildByName(ctx context.Context, parentID, name string) (*models.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.nodes {
		if n.ParentID != nil && *n.ParentID == parentID && n.Name == name {
			cp := *n
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeNodeRows) ReplaceBlob(ctx context.Context, nodeID, newBlobID string, size int64) (*string, error) {
	f.mu.Lock()
	n, ok := f.nodes[nodeID]
	if !ok {
		f.mu.Unlock()
		return nil, pgx.ErrNoRows
	}
	old := n.BlobID
	n.BlobID = &newBlobID
	n.Size = size
	n.MTime = time.Now()
	n.Rev++
	n.HasThumbnail = false
	refs := int64(0)
	if old != nil {
		refs = f.countByBlobLocked(*old)
	}
	f.mu.Unlock()

	// Mirrors the production transaction: the old blob is only retired
	// once no node row references it.
	if old != nil && *old != newBlobID && refs == 0 && f.softDelete != nil {
		f.softDelete(ctx, *old)
	}
	return old, nil
}

func (f *fakeNodeRows) CountByBlob(ctx context.Context, blobID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countByBlobLocked(blobID), nil
}

func (f *fakeNodeRows) countByBlobLocked(blobID string) int64 {
	var count int64
	for _, n := range f.nodes {
		if n.BlobID != nil && *n.BlobID == blobID {
			count++
		}
	}
	return count
}

func (f *fakeNodeRows) Rename(ctx context.Context, id, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return pgx.ErrNoRows
	}
	n.Name = name
	n.MTime = time.Now()
	return nil
}

func (f *fakeNodeRows) Move(ctx context.Context, id, newParentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return pgx.ErrNoRows
	}
	n.ParentID = &newParentID
	n.MTime = time.Now()
	return nil
}

func (f *fakeNodeRows) SetHasThumbnail(ctx context.Context, id string, has bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return pgx.ErrNoRows
	}
	n.HasThumbnail = has
	return nil
}

func (f *fakeNodeRows) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.nodes, id)
	return nil
}

// fakeRightRows is an in-memory RightStore implementation
type fakeRightRows struct {
	mu     sync.Mutex
	rights []*models.Right
}

func (f *fakeRightRows) Grant(ctx context.Context, right *models.Right) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rights {
		if r.NodeID == right.NodeID && r.SubjectType == right.SubjectType && r.SubjectID == right.SubjectID {
			r.Read = right.Read
			r.Write = right.Write
			return nil
		}
	}
	cp := *right
	f.rights = append(f.rights, &cp)
	return nil
}

func (f *fakeRightRows) ListForNode(ctx context.Context, nodeID string) ([]*models.Right, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Right
	for _, r := range f.rights {
		if r.NodeID == nodeID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// allowAll grants everything; used where rights are not under test
type allowAll struct{}

func (allowAll) CanRead(ctx context.Context, nodeID, callerID string) (bool, error) {
	return true, nil
}

func (allowAll) CanWrite(ctx context.Context, nodeID, callerID string) (bool, error) {
	return true, nil
}

// denyList denies reads on specific node ids
type denyList struct {
	denied map[string]bool
}

func (d denyList) CanRead(ctx context.Context, nodeID, callerID string) (bool, error) {
	return !d.denied[nodeID], nil
}

func (d denyList) CanWrite(ctx context.Context, nodeID, callerID string) (bool, error) {
	return !d.denied[nodeID], nil
}

// fakeRoster returns a fixed group list
type fakeRoster struct {
	groups []RosterGroup
	calls  int
}

func (f *fakeRoster) Groups(ctx context.Context) ([]RosterGroup, error) {
	f.calls++
	return f.groups, nil
}
