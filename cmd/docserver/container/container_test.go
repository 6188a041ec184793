package container

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/docvault/docvault/cmd/docserver/service"
)

type stubRoster struct{}

func (stubRoster) Groups(ctx context.Context) ([]service.RosterGroup, error) {
	return nil, nil
}

type stubFlusher struct{}

func (stubFlusher) Flush(ctx context.Context, nodeID string) error { return nil }

func TestOptionsApply(t *testing.T) {
	var set settings

	WithRoster(stubRoster{})(&set)
	WithExternalFlusher(stubFlusher{})(&set)

	require.NotNil(t, set.roster)
	require.NotNil(t, set.flusher)
	_, ok := set.roster.(stubRoster)
	assert.True(t, ok)
	_, ok = set.flusher.(stubFlusher)
	assert.True(t, ok)
}

func TestDefaultsLeaveCollaboratorsUnset(t *testing.T) {
	var set settings
	assert.Nil(t, set.roster)
	assert.Nil(t, set.flusher)
}
