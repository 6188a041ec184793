package service

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/docvault/docvault/cmd/docserver/models"
	"github.com/docvault/docvault/common/logger"
)

// ArchiveService packs subtrees into zip archives, unpacks archives into
// the tree, and serves individual members with byte-range semantics.
type ArchiveService struct {
	tree   *TreeService
	blobs  *BlobStore
	access AccessChecker
	log    *logger.Logger
}

// NewArchiveService creates an archive service
func NewArchiveService(tree *TreeService, blobs *BlobStore, access AccessChecker, log *logger.Logger) *ArchiveService {
	return &ArchiveService{
		tree:   tree,
		blobs:  blobs,
		access: access,
		log:    log,
	}
}

// Pack streams a zip of the given roots into w. Unreadable entries are
// silently omitted — the caller gets everything their rights allow at
// walk time, nothing more. File entries keep relative path and mtime.
func (a *ArchiveService) Pack(ctx context.Context, w io.Writer, roots []*models.Node, callerID string) error {
	zw := zip.NewWriter(w)

	for _, root := range roots {
		if err := a.packNode(ctx, zw, root, "", callerID, make(map[string]bool)); err != nil {
			zw.Close()
			return err
		}
	}

	return zw.Close()
}

func (a *ArchiveService) packNode(ctx context.Context, zw *zip.Writer, node *models.Node, prefix, callerID string, visited map[string]bool) error {
	if visited[node.ID] {
		return fmt.Errorf("cycle detected at node %s", node.ID)
	}
	visited[node.ID] = true

	readable, err := a.access.CanRead(ctx, node.ID, callerID)
	if err != nil {
		return err
	}
	if !readable {
		return nil
	}

	if node.IsContainer() {
		children, err := a.tree.List(ctx, node.ID)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := a.packNode(ctx, zw, child, prefix+node.Name+"/", callerID, visited); err != nil {
				return err
			}
		}
		return nil
	}

	rc, _, err := a.tree.ItemFor(node).GetContent(ctx)
	if err == ErrNoContent {
		return nil
	}
	if err != nil {
		return err
	}
	defer rc.Close()

	header := &zip.FileHeader{
		Name:     prefix + node.Name,
		Method:   zip.Deflate,
		Modified: node.MTime,
	}

	entry, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create archive entry: %w", err)
	}

	if _, err := io.Copy(entry, rc); err != nil {
		return fmt.Errorf("failed to write archive entry %s: %w", header.Name, err)
	}

	return nil
}

// Unpack recreates an archive's contents under dest, creating
// intermediate folders on demand (find-or-create per path segment,
// case-sensitive). Insufficient write rights fail the whole operation.
func (a *ArchiveService) Unpack(ctx context.Context, r io.ReaderAt, size int64, dest *models.Node, callerID string) error {
	writable, err := a.access.CanWrite(ctx, dest.ID, callerID)
	if err != nil {
		return err
	}
	if !writable {
		return ErrForbidden
	}

	if !dest.IsContainer() {
		return fmt.Errorf("unpack destination %s is not a container", dest.ID)
	}

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}

	for _, file := range zr.File {
		if strings.HasSuffix(file.Name, "/") {
			if _, err := a.ensurePath(ctx, dest, strings.TrimSuffix(file.Name, "/"), callerID); err != nil {
				return err
			}
			continue
		}

		dir, base := path.Split(file.Name)
		parent, err := a.ensurePath(ctx, dest, strings.TrimSuffix(dir, "/"), callerID)
		if err != nil {
			return err
		}

		rc, err := file.Open()
		if err != nil {
			return fmt.Errorf("failed to open archive member %s: %w", file.Name, err)
		}

		_, err = a.tree.CreateFile(ctx, parent.ID, base, guessMimetype(base), callerID, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}

	a.log.Info("unpacked archive", "dest", dest.ID, "entries", len(zr.File))
	return nil
}

// ensurePath resolves relPath below dest, creating missing folders
func (a *ArchiveService) ensurePath(ctx context.Context, dest *models.Node, relPath, callerID string) (*models.Node, error) {
	current := dest

	for _, segment := range strings.Split(relPath, "/") {
		if segment == "" {
			continue
		}

		child, err := a.tree.nodes.FindChildByName(ctx, current.ID, segment)
		if err != nil {
			return nil, err
		}
		if child == nil {
			child, err = a.tree.CreateFolder(ctx, current.ID, segment, callerID)
			if err != nil {
				return nil, err
			}
		}
		current = child
	}

	return current, nil
}

func guessMimetype(name string) string {
	if mt := mime.TypeByExtension(path.Ext(name)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
