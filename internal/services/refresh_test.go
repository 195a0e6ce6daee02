package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefreshService_StartInvokesCallbacks(t *testing.T) {
	rs := NewRefreshService()

	started, finished := 0, 0
	rs.OnStarted(func() { started++ })
	rs.OnFinished(func() { finished++ })

	rs.StartRefresh()
	assert.Equal(t, 1, started)
	assert.True(t, rs.IsRefreshing())

	rs.FinishRefresh()
	assert.Equal(t, 1, finished)
	assert.False(t, rs.IsRefreshing())
}

func TestRefreshService_DeduplicatesConcurrentStarts(t *testing.T) {
	rs := NewRefreshService()

	started := 0
	rs.OnStarted(func() { started++ })

	rs.StartRefresh()
	rs.StartRefresh()
	rs.StartRefresh()
	assert.Equal(t, 1, started)

	rs.FinishRefresh()
	rs.StartRefresh()
	assert.Equal(t, 2, started)
}

func TestRefreshService_FinishWithoutStartIsNoOp(t *testing.T) {
	rs := NewRefreshService()

	finished := 0
	rs.OnFinished(func() { finished++ })
	rs.FinishRefresh()
	assert.Equal(t, 0, finished)
}
