package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/docvault/docvault/cmd/docserver/models"
	"github.com/docvault/docvault/common/cache"
)

func newRightsFixture(t *testing.T, c cache.Cache) (*DefaultAccessChecker, *fakeRightRows, *treeFixture) {
	t.Helper()
	fx := newTreeFixture(t, nil)
	rights := &fakeRightRows{}
	checker := NewDefaultAccessChecker(fx.tree, rights, c, testLogger())
	return checker, rights, fx
}

func TestOwnerAlwaysAllowed(t *testing.T) {
	checker, _, fx := newRightsFixture(t, nil)
	ctx := context.Background()

	ok, err := checker.CanRead(ctx, fx.root.ID, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checker.CanWrite(ctx, fx.root.ID, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAnonymousCallerDenied(t *testing.T) {
	checker, _, fx := newRightsFixture(t, nil)

	ok, err := checker.CanRead(context.Background(), fx.root.ID, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGrantedRightAllowsRead(t *testing.T) {
	checker, rights, fx := newRightsFixture(t, nil)
	ctx := context.Background()

	ok, err := checker.CanRead(ctx, fx.root.ID, "bob")
	require.NoError(t, err)
	assert.False(t, ok, "no right yet")

	require.NoError(t, rights.Grant(ctx, &models.Right{
		NodeID:      fx.root.ID,
		SubjectType: models.SubjectUser,
		SubjectID:   "bob",
		Read:        true,
	}))

	ok, err = checker.CanRead(ctx, fx.root.ID, "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	// Read-only right does not grant write
	ok, err = checker.CanWrite(ctx, fx.root.ID, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckerCachesDecisions(t *testing.T) {
	c := cache.NewMemoryCache(testLogger())
	checker, rights, fx := newRightsFixture(t, c)
	ctx := context.Background()

	ok, err := checker.CanRead(ctx, fx.root.ID, "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	// The new grant is invisible until the cached denial expires
	require.NoError(t, rights.Grant(ctx, &models.Right{
		NodeID:      fx.root.ID,
		SubjectType: models.SubjectUser,
		SubjectID:   "bob",
		Read:        true,
	}))

	ok, err = checker.CanRead(ctx, fx.root.ID, "bob")
	require.NoError(t, err)
	assert.False(t, ok, "decision comes from cache inside the TTL")
}

func TestCheckerUnknownNode(t *testing.T) {
	checker, _, _ := newRightsFixture(t, nil)

	_, err := checker.CanRead(context.Background(), "no-such-node", "alice")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRightServiceValidatesSubject(t *testing.T) {
	rights := &fakeRightRows{}
	svc := NewRightService(rights, testLogger())
	ctx := context.Background()

	err := svc.Grant(ctx, &models.Right{NodeID: "n", SubjectType: "alien", SubjectID: "x"})
	assert.True(t, errors.Is(err, ErrConflict))

	err = svc.Grant(ctx, &models.Right{NodeID: "n", SubjectType: models.SubjectUser, SubjectID: ""})
	assert.True(t, errors.Is(err, ErrConflict))

	err = svc.Grant(ctx, &models.Right{NodeID: "n", SubjectType: models.SubjectUser, SubjectID: "x", Read: true})
	require.NoError(t, err)

	listed, err := svc.ListForNode(ctx, "n")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].Read)
}
