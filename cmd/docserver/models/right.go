package models

// Subject kinds for access-control entries
const (
	SubjectUser    = "user"
	SubjectGroup   = "group"
	SubjectProfile = "profile"
)

// Right grants read/write on a node to a subject
// Maps to: right table
type Right struct {
	NodeID      string `db:"node_id" json:"node_id"`
	SubjectType string `db:"subject_type" json:"subject_type"`
	SubjectID   string `db:"subject_id" json:"subject_id"`
	Read        bool   `db:"read" json:"read"`
	Write       bool   `db:"write" json:"write"`
}
