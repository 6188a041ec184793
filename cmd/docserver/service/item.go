package service

import (
	"context"
	"io"

	"github.com/docvault/docvault/cmd/docserver/models"
)

// Item is the polymorphic runtime wrapper around a Node. The node's type
// tag selects the concrete behavior through the registry; no reflection
// is involved.
type Item interface {
	// Node returns the wrapped metadata record
	Node() *models.Node

	// GetContent streams the node's primary bytes. Containers return
	// ErrNoContent.
	GetContent(ctx context.Context) (io.ReadCloser, *models.Blob, error)

	// Delete removes the node; containers delete children first
	Delete(ctx context.Context) error

	// ToJSON serializes the node, recursing one level into children
	// when expand is set on a container
	ToJSON(ctx context.Context, expand bool) (map[string]any, error)
}

// ItemCtor builds an item for a node
type ItemCtor func(t *TreeService, n *models.Node) Item

// documentItem is the generic behavior for plain stored documents and
// the fallback for unregistered type tags
type documentItem struct {
	tree *TreeService
	node *models.Node
}

func newDocumentItem(t *TreeService, n *models.Node) Item {
	return &documentItem{tree: t, node: n}
}

func (d *documentItem) Node() *models.Node { return d.node }

func (d *documentItem) GetContent(ctx context.Context) (io.ReadCloser, *models.Blob, error) {
	if d.node.BlobID == nil {
		return nil, nil, ErrNoContent
	}

	f, blob, err := d.tree.blobs.StreamOf(ctx, *d.node.BlobID)
	if err != nil {
		return nil, nil, err
	}
	return f, blob, nil
}

func (d *documentItem) Delete(ctx context.Context) error {
	if err := d.tree.nodes.Delete(ctx, d.node.ID); err != nil {
		return err
	}
	// Only the last reference retires the shared bytes
	if d.node.BlobID != nil {
		return d.tree.releasePrimaryBlob(ctx, *d.node.BlobID)
	}
	return nil
}

func (d *documentItem) ToJSON(ctx context.Context, expand bool) (map[string]any, error) {
	return nodeJSON(d.node), nil
}

// weblinkItem is a stored bookmark; its blob holds the target URL, so
// plain document behavior applies except content is not browsable media
type weblinkItem struct {
	documentItem
}

func newWeblinkItem(t *TreeService, n *models.Node) Item {
	return &weblinkItem{documentItem{tree: t, node: n}}
}

// extDocItem represents a document co-edited through an external editor.
// A pending external save must land before the bytes are read.
type extDocItem struct {
	documentItem
}

func newExtDocItem(t *TreeService, n *models.Node) Item {
	return &extDocItem{documentItem{tree: t, node: n}}
}

func (e *extDocItem) GetContent(ctx context.Context) (io.ReadCloser, *models.Blob, error) {
	if err := e.tree.flusher.Flush(ctx, e.node.ID); err != nil {
		return nil, nil, err
	}
	return e.documentItem.GetContent(ctx)
}

func nodeJSON(n *models.Node) map[string]any {
	out := map[string]any{
		"id":            n.ID,
		"name":          n.Name,
		"type":          n.Type,
		"size":          n.Size,
		"mtime":         n.MTime,
		"rev":           n.Rev,
		"owner_id":      n.OwnerID,
		"has_thumbnail": n.HasThumbnail,
	}
	if n.ParentID != nil {
		out["parent_id"] = *n.ParentID
	}
	if n.BlobID != nil {
		out["blob_id"] = *n.BlobID
	}
	return out
}
