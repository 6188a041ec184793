package repository

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/docvault/docvault/common/db"
)

//go:embed schema.sql
var schemaSQL string

// InitSchema creates the metadata tables if they don't exist yet.
// Wired through bootstrap.WithDBInitHook at startup.
func InitSchema(database *db.DB) error {
	if _, err := database.Exec(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
