package service

import (
	"context"
	"fmt"
	"time"

	"github.com/docvault/docvault/cmd/docserver/models"
	"github.com/docvault/docvault/common/cache"
	"github.com/docvault/docvault/common/logger"
)

// AccessChecker is the caller-identity/rights collaborator. The real
// rights engine lives outside this service; anything implementing the
// predicate can be plugged in.
type AccessChecker interface {
	CanRead(ctx context.Context, nodeID, callerID string) (bool, error)
	CanWrite(ctx context.Context, nodeID, callerID string) (bool, error)
}

// RightRows is the metadata surface the default checker reads
type RightRows interface {
	ListForNode(ctx context.Context, nodeID string) ([]*models.Right, error)
}

// DefaultAccessChecker evaluates Right rows directly: owners always
// pass, everyone else needs a matching user-subject entry. Group and
// profile subjects require membership data this service doesn't own, so
// they only grant here when the subject id equals the caller id.
type DefaultAccessChecker struct {
	tree   *TreeService
	rights RightRows
	cache  cache.Cache
	log    *logger.Logger
}

// NewDefaultAccessChecker creates the repo-backed rights predicate
func NewDefaultAccessChecker(tree *TreeService, rights RightRows, c cache.Cache, log *logger.Logger) *DefaultAccessChecker {
	return &DefaultAccessChecker{
		tree:   tree,
		rights: rights,
		cache:  c,
		log:    log,
	}
}

// CanRead reports whether callerID may read the node
func (a *DefaultAccessChecker) CanRead(ctx context.Context, nodeID, callerID string) (bool, error) {
	return a.check(ctx, nodeID, callerID, false)
}

// CanWrite reports whether callerID may write the node
func (a *DefaultAccessChecker) CanWrite(ctx context.Context, nodeID, callerID string) (bool, error) {
	return a.check(ctx, nodeID, callerID, true)
}

func (a *DefaultAccessChecker) check(ctx context.Context, nodeID, callerID string, write bool) (bool, error) {
	if callerID == "" {
		return false, nil
	}

	cacheKey := fmt.Sprintf("rights:%s:%s:%t", nodeID, callerID, write)
	if a.cache != nil {
		if v, ok, _ := a.cache.Get(ctx, cacheKey); ok {
			return string(v) == "y", nil
		}
	}

	allowed, err := a.evaluate(ctx, nodeID, callerID, write)
	if err != nil {
		return false, err
	}

	if a.cache != nil {
		v := []byte("n")
		if allowed {
			v = []byte("y")
		}
		_ = a.cache.Set(ctx, cacheKey, v, 30*time.Second)
	}

	return allowed, nil
}

func (a *DefaultAccessChecker) evaluate(ctx context.Context, nodeID, callerID string, write bool) (bool, error) {
	node, err := a.tree.GetNode(ctx, nodeID)
	if err != nil {
		return false, err
	}

	if node.OwnerID == callerID {
		return true, nil
	}

	rights, err := a.rights.ListForNode(ctx, nodeID)
	if err != nil {
		return false, err
	}

	for _, r := range rights {
		if r.SubjectID != callerID {
			continue
		}
		if write && r.Write {
			return true, nil
		}
		if !write && r.Read {
			return true, nil
		}
	}

	return false, nil
}
