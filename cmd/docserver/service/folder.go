package service

import (
	"context"
	"fmt"
	"io"

	"github.com/docvault/docvault/cmd/docserver/models"
)

// folderItem is the container behavior: no raw content, recursive delete,
// one-level child expansion in JSON
type folderItem struct {
	tree *TreeService
	node *models.Node
}

func newFolderItem(t *TreeService, n *models.Node) Item {
	return &folderItem{tree: t, node: n}
}

func (f *folderItem) Node() *models.Node { return f.node }

func (f *folderItem) GetContent(ctx context.Context) (io.ReadCloser, *models.Blob, error) {
	return nil, nil, ErrNoContent
}

func (f *folderItem) Delete(ctx context.Context) error {
	return f.tree.deleteSubtree(ctx, f.node, make(map[string]bool))
}

func (f *folderItem) ToJSON(ctx context.Context, expand bool) (map[string]any, error) {
	out := nodeJSON(f.node)

	if expand {
		children, err := f.tree.List(ctx, f.node.ID)
		if err != nil {
			return nil, err
		}

		list := make([]map[string]any, 0, len(children))
		for _, child := range children {
			// One level only; children of children stay collapsed
			item, err := f.tree.ItemFor(child).ToJSON(ctx, false)
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		out["children"] = list
	}

	return out, nil
}

// groupRootItem is a folder whose children mirror the external roster;
// listing reconciles before returning
type groupRootItem struct {
	folderItem
}

func newGroupRootItem(t *TreeService, n *models.Node) Item {
	return &groupRootItem{folderItem{tree: t, node: n}}
}

// deleteSubtree removes a container and everything below it, children
// before parents. The tree is expected acyclic, but the visited set keeps
// a malformed parent edge from recursing forever.
func (t *TreeService) deleteSubtree(ctx context.Context, node *models.Node, visited map[string]bool) error {
	if visited[node.ID] {
		return fmt.Errorf("cycle detected at node %s", node.ID)
	}
	visited[node.ID] = true

	children, err := t.nodes.ListChildren(ctx, node.ID)
	if err != nil {
		return err
	}

	for _, child := range children {
		if child.IsContainer() {
			if err := t.deleteSubtree(ctx, child, visited); err != nil {
				return err
			}
			continue
		}
		if err := t.ItemFor(child).Delete(ctx); err != nil {
			return err
		}
	}

	if err := t.nodes.Delete(ctx, node.ID); err != nil {
		return err
	}
	if node.BlobID != nil {
		return t.releasePrimaryBlob(ctx, *node.BlobID)
	}
	return nil
}
