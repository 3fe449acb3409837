package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleEnsureOpen(t *testing.T) {
	var l Lifecycle

	created := l.EnsureOpen()
	require.NotNil(t, created)
	assert.Equal(t, "response.created", created.Type)
	assert.True(t, strings.HasPrefix(created.Response.ID, "resp_"))
	assert.Equal(t, "in_progress", created.Response.Status)
	assert.True(t, l.Active())

	responseID, itemID := l.IDs()
	assert.Equal(t, created.Response.ID, responseID)
	assert.True(t, strings.HasPrefix(itemID, "item_"))

	// A second call while active opens nothing.
	assert.Nil(t, l.EnsureOpen())
	sameResponse, sameItem := l.IDs()
	assert.Equal(t, responseID, sameResponse)
	assert.Equal(t, itemID, sameItem)
}

func TestLifecycleComplete(t *testing.T) {
	var l Lifecycle
	created := l.EnsureOpen()
	require.NotNil(t, created)
	responseID, itemID := l.IDs()

	audioDone, done := l.Complete()
	require.NotNil(t, audioDone)
	require.NotNil(t, done)
	assert.Equal(t, responseID, audioDone.ResponseID)
	assert.Equal(t, itemID, audioDone.ItemID)
	assert.Equal(t, responseID, done.Response.ID)
	assert.Equal(t, "completed", done.Response.Status)
	assert.False(t, l.Active())
}

func TestLifecycleCompleteWhenIdle(t *testing.T) {
	var l Lifecycle
	audioDone, done := l.Complete()
	assert.Nil(t, audioDone)
	assert.Nil(t, done)
}

func TestLifecycleReopensWithFreshIDs(t *testing.T) {
	var l Lifecycle

	first := l.EnsureOpen()
	l.Complete()
	second := l.EnsureOpen()

	require.NotNil(t, second)
	assert.NotEqual(t, first.Response.ID, second.Response.ID)
}

func TestGreetingCacheDebounce(t *testing.T) {
	now := time.Now()
	g := newGreetingCache()
	g.now = func() time.Time { return now }

	assert.False(t, g.IsDuplicate("hello"))
	g.Remember("hello")

	// Same text inside the window is a duplicate.
	now = now.Add(GreetingDebounce - time.Millisecond)
	assert.True(t, g.IsDuplicate("hello"))

	// Different text is never a duplicate.
	assert.False(t, g.IsDuplicate("goodbye"))

	// Same text after the window expires is forwarded again.
	now = now.Add(2 * time.Millisecond)
	assert.False(t, g.IsDuplicate("hello"))
}
