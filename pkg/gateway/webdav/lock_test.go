package webdav

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/gatefs/gatefs/pkg/gateway/errors"
)

func newTestLockManager(t *testing.T) *LockManager {
	t.Helper()
	lm := NewLockManager()
	t.Cleanup(lm.Close)
	return lm
}

func TestClampTimeout(t *testing.T) {
	assert.Equal(t, DefaultLockTimeout, ClampTimeout(0))
	assert.Equal(t, MinLockTimeout, ClampTimeout(time.Second))
	assert.Equal(t, MaxLockTimeout, ClampTimeout(24*time.Hour))
	assert.Equal(t, 5*time.Minute, ClampTimeout(5*time.Minute))
}

func TestAcquireConflicts(t *testing.T) {
	lm := newTestLockManager(t)
	ctx := context.Background()

	lock, err := lm.Acquire(ctx, "/files/a.txt", "alice", 0, true, 0)
	require.NoError(t, err)
	assert.Contains(t, lock.Token, "opaquelocktoken:")

	_, err = lm.Acquire(ctx, "/files/a.txt", "bob", 0, true, 0)
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrLocked))

	_, err = lm.Acquire(ctx, "/files/a.txt", "bob", 0, false, 0)
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrLocked))
}

func TestSharedLocksCoexist(t *testing.T) {
	lm := newTestLockManager(t)
	ctx := context.Background()

	first, err := lm.Acquire(ctx, "/files/a.txt", "alice", 0, false, 0)
	require.NoError(t, err)
	second, err := lm.Acquire(ctx, "/files/a.txt", "bob", 0, false, 0)
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	// The first holder's token must survive the second grant.
	assert.NoError(t, lm.Check("/files/a.txt", "(<"+first.Token+">)"))
	assert.NoError(t, lm.Check("/files/a.txt", "(<"+second.Token+">)"))
	assert.True(t, gwerrors.IsCode(lm.Check("/files/a.txt", ""), gwerrors.ErrLocked))

	_, err = lm.Acquire(ctx, "/files/a.txt", "carol", 0, true, 0)
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrLocked))

	require.NoError(t, lm.Release("/files/a.txt", first.Token))
	assert.NoError(t, lm.Check("/files/a.txt", "(<"+second.Token+">)"))
	require.NoError(t, lm.Release("/files/a.txt", second.Token))
	assert.NoError(t, lm.Check("/files/a.txt", ""))
}

func TestAcquireCancelledContext(t *testing.T) {
	lm := newTestLockManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := lm.Acquire(ctx, "/files/a.txt", "alice", 0, true, 0)
	require.Error(t, err)
	assert.NoError(t, lm.Check("/files/a.txt", ""))
}

func TestDepthInfinityCoversDescendants(t *testing.T) {
	lm := newTestLockManager(t)
	ctx := context.Background()

	_, err := lm.Acquire(ctx, "/files/dir", "alice", depthInfinity, true, 0)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "/files/dir/child.txt", "bob", 0, true, 0)
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrLocked))

	assert.Error(t, lm.Check("/files/dir/child.txt", ""))
	assert.NoError(t, lm.Check("/files/other.txt", ""))
}

func TestDepthZeroDoesNotCoverDescendants(t *testing.T) {
	lm := newTestLockManager(t)

	_, err := lm.Acquire(context.Background(), "/files/dir", "alice", 0, true, 0)
	require.NoError(t, err)

	assert.NoError(t, lm.Check("/files/dir/child.txt", ""))
}

func TestLockingParentOfLockedChildConflicts(t *testing.T) {
	lm := newTestLockManager(t)
	ctx := context.Background()

	_, err := lm.Acquire(ctx, "/files/dir/child.txt", "alice", 0, true, 0)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "/files/dir", "bob", depthInfinity, true, 0)
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrLocked))
}

func TestCheckHonoursIfToken(t *testing.T) {
	lm := newTestLockManager(t)

	lock, err := lm.Acquire(context.Background(), "/files/a.txt", "alice", 0, true, 0)
	require.NoError(t, err)

	assert.True(t, gwerrors.IsCode(lm.Check("/files/a.txt", ""), gwerrors.ErrLocked))
	assert.NoError(t, lm.Check("/files/a.txt", "(<"+lock.Token+">)"))
}

func TestRefresh(t *testing.T) {
	lm := newTestLockManager(t)

	lock, err := lm.Acquire(context.Background(), "/files/a.txt", "alice", 0, true, MinLockTimeout)
	require.NoError(t, err)
	before := lock.ExpiresAt

	refreshed, err := lm.Refresh("/files/a.txt", lock.Token, MaxLockTimeout)
	require.NoError(t, err)
	assert.True(t, refreshed.ExpiresAt.After(before))

	_, err = lm.Refresh("/files/a.txt", "opaquelocktoken:bogus", 0)
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrPathForbidden))

	_, err = lm.Refresh("/files/missing.txt", lock.Token, 0)
	assert.True(t, gwerrors.IsCode(err, gwerrors.ErrNotFound))
}

func TestRelease(t *testing.T) {
	lm := newTestLockManager(t)

	lock, err := lm.Acquire(context.Background(), "/files/a.txt", "alice", 0, true, 0)
	require.NoError(t, err)

	assert.True(t, gwerrors.IsCode(lm.Release("/files/a.txt", "opaquelocktoken:bogus"), gwerrors.ErrPathForbidden))
	require.NoError(t, lm.Release("/files/a.txt", lock.Token))
	assert.True(t, gwerrors.IsCode(lm.Release("/files/a.txt", lock.Token), gwerrors.ErrConflict))
}

func TestExpiredLockIsIgnored(t *testing.T) {
	lm := newTestLockManager(t)

	lock, err := lm.Acquire(context.Background(), "/files/a.txt", "alice", 0, true, 0)
	require.NoError(t, err)

	lm.mu.Lock()
	lock.ExpiresAt = time.Now().Add(-time.Minute)
	lm.mu.Unlock()

	assert.NoError(t, lm.Check("/files/a.txt", ""))
	_, err = lm.Acquire(context.Background(), "/files/a.txt", "bob", 0, true, 0)
	assert.NoError(t, err)
}

func TestParseIfTokens(t *testing.T) {
	tokens := parseIfTokens(`</files/a.txt> (<opaquelocktoken:abc> ["etag"]) (<opaquelocktoken:def>)`)
	assert.True(t, tokens["opaquelocktoken:abc"])
	assert.True(t, tokens["opaquelocktoken:def"])
	assert.Len(t, tokens, 2)

	assert.Empty(t, parseIfTokens(""))
	assert.Empty(t, parseIfTokens("(<urn:uuid:not-a-lock>)"))
}
