package service

import (
	"context"
	"fmt"

	"github.com/docvault/docvault/cmd/docserver/models"
	"github.com/docvault/docvault/common/logger"
)

// RightStore is the full metadata surface for access-control entries
type RightStore interface {
	Grant(ctx context.Context, right *models.Right) error
	ListForNode(ctx context.Context, nodeID string) ([]*models.Right, error)
}

// RightService manages the rights attached to nodes
type RightService struct {
	repo RightStore
	log  *logger.Logger
}

// NewRightService creates a right service
func NewRightService(repo RightStore, log *logger.Logger) *RightService {
	return &RightService{repo: repo, log: log}
}

// Grant upserts a right entry on a node
func (s *RightService) Grant(ctx context.Context, right *models.Right) error {
	switch right.SubjectType {
	case models.SubjectUser, models.SubjectGroup, models.SubjectProfile:
	default:
		return fmt.Errorf("%w: unknown subject type %q", ErrConflict, right.SubjectType)
	}
	if right.SubjectID == "" {
		return fmt.Errorf("%w: subject id is required", ErrConflict)
	}

	if err := s.repo.Grant(ctx, right); err != nil {
		return err
	}

	s.log.Info("granted right",
		"node_id", right.NodeID,
		"subject", right.SubjectID,
		"read", right.Read,
		"write", right.Write,
	)
	return nil
}

// ListForNode lists the rights attached to a node
func (s *RightService) ListForNode(ctx context.Context, nodeID string) ([]*models.Right, error) {
	return s.repo.ListForNode(ctx, nodeID)
}
