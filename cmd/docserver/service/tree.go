package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/docvault/docvault/cmd/docserver/models"
	"github.com/docvault/docvault/cmd/docserver/storage"
	"github.com/docvault/docvault/common/logger"
)

// NodeRows is the metadata-store surface the tree service needs.
// *repository.NodeRepository is the production implementation.
type NodeRows interface {
	Insert(ctx context.Context, node *models.Node) error
	GetByID(ctx context.Context, id string) (*models.Node, error)
	ListChildren(ctx context.Context, parentID string) ([]*models.Node, error)
	FindChildByName(ctx context.Context, parentID, name string) (*models.Node, error)
	ReplaceBlob(ctx context.Context, nodeID, newBlobID string, size int64) (*string, error)
	CountByBlob(ctx context.Context, blobID string) (int64, error)
	Rename(ctx context.Context, id, name string) error
	Move(ctx context.Context, id, newParentID string) error
	SetHasThumbnail(ctx context.Context, id string, has bool) error
	Delete(ctx context.Context, id string) error
}

// Roster is the external collaborator some container types reconcile
// against (one child folder per roster group). Out of scope here beyond
// this surface.
type Roster interface {
	Groups(ctx context.Context) ([]RosterGroup, error)
}

// RosterGroup is one externally managed group
type RosterGroup struct {
	ID   string
	Name string
}

// ExternalFlusher forces a pending external co-editing save to land
// before content is read. The default implementation is a no-op.
type ExternalFlusher interface {
	Flush(ctx context.Context, nodeID string) error
}

// NoopFlusher is the default ExternalFlusher
type NoopFlusher struct{}

// Flush does nothing
func (NoopFlusher) Flush(ctx context.Context, nodeID string) error { return nil }

// TreeService owns the persisted node tree and its runtime Item wrappers
type TreeService struct {
	nodes    NodeRows
	blobs    *BlobStore
	registry map[string]ItemCtor
	roster   Roster
	flusher  ExternalFlusher
	log      *logger.Logger
}

// NewTreeService creates a tree service with the default item registry
func NewTreeService(nodes NodeRows, blobs *BlobStore, roster Roster, flusher ExternalFlusher, log *logger.Logger) *TreeService {
	if flusher == nil {
		flusher = NoopFlusher{}
	}

	t := &TreeService{
		nodes:    nodes,
		blobs:    blobs,
		registry: make(map[string]ItemCtor),
		roster:   roster,
		flusher:  flusher,
		log:      log,
	}

	// Populated at startup; unregistered tags fall back to the generic
	// document behavior in ItemFor.
	t.RegisterItem(models.TypeFolder, newFolderItem)
	t.RegisterItem(models.TypeGroupRoot, newGroupRootItem)
	t.RegisterItem(models.TypeWeblink, newWeblinkItem)
	t.RegisterItem(models.TypeExtDoc, newExtDocItem)

	return t
}

// RegisterItem binds a type tag to an item constructor
func (t *TreeService) RegisterItem(tag string, ctor ItemCtor) {
	t.registry[tag] = ctor
}

// GetNode retrieves a node by id
func (t *TreeService) GetNode(ctx context.Context, id string) (*models.Node, error) {
	node, err := t.nodes.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return node, nil
}

// ItemFor wraps a node in its runtime item type
func (t *TreeService) ItemFor(node *models.Node) Item {
	if ctor, ok := t.registry[node.Type]; ok {
		return ctor(t, node)
	}
	return newDocumentItem(t, node)
}

// GetItem resolves a node id straight to its item
func (t *TreeService) GetItem(ctx context.Context, id string) (Item, error) {
	node, err := t.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.ItemFor(node), nil
}

// CreateFolder creates a container node under parent
func (t *TreeService) CreateFolder(ctx context.Context, parentID, name, ownerID string) (*models.Node, error) {
	if err := t.checkNameFree(ctx, parentID, name); err != nil {
		return nil, err
	}

	node := &models.Node{
		ID:       uuid.New().String(),
		ParentID: &parentID,
		Name:     name,
		Type:     models.TypeFolder,
		MTime:    time.Now(),
		OwnerID:  ownerID,
	}

	if err := t.nodes.Insert(ctx, node); err != nil {
		return nil, err
	}

	t.log.Info("created folder", "node_id", node.ID, "name", name)
	return node, nil
}

// CreateFile uploads content as a new node under parent. Byte-identical
// payloads share one primary blob: the staged upload is finalized only
// when no live primary carries the same (size, sha1, md5) triple.
func (t *TreeService) CreateFile(ctx context.Context, parentID, name, mimetype, ownerID string, r io.Reader) (*models.Node, error) {
	if err := t.checkNameFree(ctx, parentID, name); err != nil {
		return nil, err
	}

	staged, err := t.blobs.Prepare(ctx, r)
	if err != nil {
		return nil, err
	}

	node := &models.Node{
		ID:       uuid.New().String(),
		ParentID: &parentID,
		Name:     name,
		Type:     mimetype,
		MTime:    time.Now(),
		OwnerID:  ownerID,
	}

	if staged != nil {
		blob, err := t.resolveUploadBlob(ctx, staged, mimetype)
		if err != nil {
			t.blobs.Discard(staged)
			return nil, err
		}
		node.BlobID = &blob.ID
		node.Size = blob.Size
	}

	if err := t.nodes.Insert(ctx, node); err != nil {
		return nil, err
	}

	t.log.Info("created file", "node_id", node.ID, "name", name, "size", node.Size)
	return node, nil
}

// ReplaceContent swaps a node's primary blob for newly uploaded bytes:
// rev increments by exactly one and the previous blob is soft-deleted
// for the reaper.
func (t *TreeService) ReplaceContent(ctx context.Context, nodeID string, r io.Reader) (*models.Node, error) {
	node, err := t.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if node.IsContainer() {
		return nil, ErrNoContent
	}

	staged, err := t.blobs.Prepare(ctx, r)
	if err != nil {
		return nil, err
	}
	if staged == nil {
		return nil, fmt.Errorf("no content supplied for replacement")
	}

	blob, err := t.resolveUploadBlob(ctx, staged, node.Type)
	if err != nil {
		t.blobs.Discard(staged)
		return nil, err
	}

	if _, err := t.nodes.ReplaceBlob(ctx, node.ID, blob.ID, blob.Size); err != nil {
		return nil, err
	}

	t.log.Info("replaced content", "node_id", node.ID, "blob_id", blob.ID)
	return t.GetNode(ctx, nodeID)
}

// resolveUploadBlob dedups a staged payload against live primaries,
// finalizing only on a miss
func (t *TreeService) resolveUploadBlob(ctx context.Context, staged *storage.Staged, mimetype string) (*models.Blob, error) {
	dup, err := t.blobs.FindDuplicate(ctx, staged)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		t.blobs.Discard(staged)
		return dup, nil
	}

	return t.blobs.Finalize(ctx, staged, BlobMeta{
		Mimetype: mimetype,
		Size:     staged.Size,
		SHA1:     staged.SHA1,
		MD5:      staged.MD5,
	})
}

// releasePrimaryBlob soft-deletes a primary blob once the last node
// referencing it is gone. Dedup means several nodes can share one blob,
// so a node's death only retires the bytes when no sibling reference
// survives. Call after the referencing node row is deleted.
func (t *TreeService) releasePrimaryBlob(ctx context.Context, blobID string) error {
	refs, err := t.nodes.CountByBlob(ctx, blobID)
	if err != nil {
		return err
	}
	if refs > 0 {
		t.log.Debug("blob still referenced", "blob_id", blobID, "refs", refs)
		return nil
	}
	_, err = t.blobs.SoftDelete(ctx, blobID)
	return err
}

// List returns a container's direct children, reconciled first when the
// container type requires it
func (t *TreeService) List(ctx context.Context, parentID string) ([]*models.Node, error) {
	node, err := t.GetNode(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !node.IsContainer() {
		return nil, fmt.Errorf("node %s is not a container", parentID)
	}

	if node.Type == models.TypeGroupRoot {
		if err := t.reconcileGroupRoot(ctx, node); err != nil {
			// Reconciliation failure degrades to the unreconciled listing
			t.log.Warn("group roster reconciliation failed", "node_id", node.ID, "error", err)
		}
	}

	return t.nodes.ListChildren(ctx, parentID)
}

// reconcileGroupRoot lazily materializes one child folder per roster
// group. Side effects only on the first observed gap; existing children
// are never removed.
func (t *TreeService) reconcileGroupRoot(ctx context.Context, node *models.Node) error {
	if t.roster == nil {
		return nil
	}

	groups, err := t.roster.Groups(ctx)
	if err != nil {
		return err
	}

	for _, g := range groups {
		existing, err := t.nodes.FindChildByName(ctx, node.ID, g.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}

		child := &models.Node{
			ID:       uuid.New().String(),
			ParentID: &node.ID,
			Name:     g.Name,
			Type:     models.TypeFolder,
			MTime:    time.Now(),
			OwnerID:  node.OwnerID,
		}
		if err := t.nodes.Insert(ctx, child); err != nil {
			return err
		}
		t.log.Info("materialized group folder", "node_id", child.ID, "group", g.ID)
	}

	return nil
}

// Parent returns a node's parent, or nil for roots
func (t *TreeService) Parent(ctx context.Context, node *models.Node) (*models.Node, error) {
	if node.ParentID == nil {
		return nil, nil
	}
	return t.GetNode(ctx, *node.ParentID)
}

// Ancestors walks parent edges up to (excluding) the root-less top,
// nearest first. The visited guard keeps a malformed cycle from hanging
// the walk.
func (t *TreeService) Ancestors(ctx context.Context, node *models.Node) ([]*models.Node, error) {
	var ancestors []*models.Node
	visited := map[string]bool{node.ID: true}

	current := node
	for current.ParentID != nil {
		parent, err := t.GetNode(ctx, *current.ParentID)
		if err != nil {
			return nil, err
		}
		if visited[parent.ID] {
			return nil, fmt.Errorf("cycle detected at node %s", parent.ID)
		}
		visited[parent.ID] = true
		ancestors = append(ancestors, parent)
		current = parent
	}

	return ancestors, nil
}

// Root returns the topmost ancestor of a node (the node itself if it is
// a root)
func (t *TreeService) Root(ctx context.Context, node *models.Node) (*models.Node, error) {
	ancestors, err := t.Ancestors(ctx, node)
	if err != nil {
		return nil, err
	}
	if len(ancestors) == 0 {
		return node, nil
	}
	return ancestors[len(ancestors)-1], nil
}

// Rename changes a node's name, guarding against sibling collisions
func (t *TreeService) Rename(ctx context.Context, nodeID, name string) error {
	node, err := t.GetNode(ctx, nodeID)
	if err != nil {
		return err
	}
	if node.ParentID != nil {
		if err := t.checkNameFree(ctx, *node.ParentID, name); err != nil {
			return err
		}
	}
	return t.nodes.Rename(ctx, nodeID, name)
}

// Move reparents a node, guarding against name collisions at the target
func (t *TreeService) Move(ctx context.Context, nodeID, newParentID string) error {
	node, err := t.GetNode(ctx, nodeID)
	if err != nil {
		return err
	}
	if err := t.checkNameFree(ctx, newParentID, node.Name); err != nil {
		return err
	}
	return t.nodes.Move(ctx, nodeID, newParentID)
}

// PrimaryBlob loads the node's primary blob metadata
func (t *TreeService) PrimaryBlob(ctx context.Context, node *models.Node) (*models.Blob, error) {
	if node.BlobID == nil {
		return nil, ErrNoContent
	}
	return t.blobs.GetBlob(ctx, *node.BlobID)
}

func (t *TreeService) checkNameFree(ctx context.Context, parentID, name string) error {
	existing, err := t.nodes.FindChildByName(ctx, parentID, name)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %q", ErrConflict, name)
	}
	return nil
}
