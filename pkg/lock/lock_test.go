package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLock_Exclusive(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "entity_report_data_index", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.TryLock(ctx, "entity_report_data_index", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquisition must fail while held")

	// Different key is independent.
	ok, err = l.TryLock(ctx, "web_analytic_entity_view_report_data", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLock_UnlockReleases(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "idx", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Unlock(ctx, "idx"))

	ok, err = l.TryLock(ctx, "idx", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLock_TTLExpires(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "idx", time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)

	ok, err = l.TryLock(ctx, "idx", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease must be reacquirable")
}
