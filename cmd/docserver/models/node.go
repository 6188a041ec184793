package models

import "time"

// Structural type tags. Anything else in Node.Type is a mimetype and
// resolves to the generic document behavior.
const (
	TypeFolder    = "folder"
	TypeGroupRoot = "group-root"
	TypeWeblink   = "url"
	TypeExtDoc    = "extdoc"
)

// Node represents one entry in the document tree
// Maps to: node table
type Node struct {
	// Generated id
	ID string `db:"id" json:"id"`

	// Parent node; NULL only for roots
	ParentID *string `db:"parent_id" json:"parent_id,omitempty"`

	Name string `db:"name" json:"name"`

	// Type tag. Doubles as mimetype for plain documents, or a
	// structural tag such as "folder". Selects the runtime Item type.
	Type string `db:"type" json:"type"`

	Size  int64     `db:"size" json:"size"`
	MTime time.Time `db:"mtime" json:"mtime"`

	// Monotonic revision counter, bumped on every content replacement.
	// Clients use it for cache busting and stale-reference detection.
	Rev int64 `db:"rev" json:"rev"`

	OwnerID string `db:"owner_id" json:"owner_id"`

	// Primary blob; NULL for containers
	BlobID *string `db:"blob_id" json:"blob_id,omitempty"`

	HasThumbnail bool `db:"has_thumbnail" json:"has_thumbnail"`
}

// IsRoot reports whether the node has no parent
func (n *Node) IsRoot() bool {
	return n.ParentID == nil
}

// IsContainer reports whether the node can hold children
func (n *Node) IsContainer() bool {
	return n.Type == TypeFolder || n.Type == TypeGroupRoot
}
