package models

import "time"

// Variant discriminators stored in Blob.Name. NULL for primaries.
const (
	VariantThumbnail = "thumbnail"
	VariantWebAudio  = "webaudio"
	VariantWebVideo  = "webvideo"
)

// Blob represents an immutable content-addressed byte payload
// Maps to: blob table
type Blob struct {
	// Store-assigned opaque id
	ID string `db:"id" json:"id"`

	// Primary blob this variant decorates; NULL for primaries
	ParentID *string `db:"parent_id" json:"parent_id,omitempty"`

	// Variant discriminator ("thumbnail", "webaudio", "webvideo");
	// NULL for primaries. Among live blobs a (parent_id, name) slot
	// has at most one occupant, enforced by convention at write time.
	Name *string `db:"name" json:"name,omitempty"`

	Mimetype string `db:"mimetype" json:"mimetype"`
	Size     int64  `db:"size" json:"size"`

	// Dedup signal for primaries: (size, sha1, md5) equality.
	SHA1 string `db:"sha1" json:"sha1"`
	MD5  string `db:"md5" json:"md5"`

	CTime time.Time `db:"ctime" json:"ctime"`

	// Soft-delete marker; NULL while live. Physical removal is the
	// reaper's job, never the caller's.
	DTime *time.Time `db:"dtime" json:"dtime,omitempty"`
}

// IsPrimary reports whether the blob is a primary payload (not a variant)
func (b *Blob) IsPrimary() bool {
	return b.ParentID == nil
}

// IsDeleted reports whether the blob has been soft-deleted
func (b *Blob) IsDeleted() bool {
	return b.DTime != nil
}
