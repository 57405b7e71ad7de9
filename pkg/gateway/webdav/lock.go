package webdav

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatefs/gatefs/internal/logger"
	gwerrors "github.com/gatefs/gatefs/pkg/gateway/errors"
	"github.com/gatefs/gatefs/pkg/gateway/vpath"
)

// Lock timeout bounds per RFC 4918 practice.
const (
	MinLockTimeout     = 60 * time.Second
	MaxLockTimeout     = 3600 * time.Second
	DefaultLockTimeout = 600 * time.Second

	lockSweepInterval = 60 * time.Second
)

// Lock is one active WebDAV lock.
type Lock struct {
	Token     string
	Path      string
	Owner     string
	Depth     int // 0 or depthInfinity
	Exclusive bool
	ExpiresAt time.Time
}

const depthInfinity = -1

// LockManager is the process-local lock table. Locks are keyed by normalised
// virtual path; each path may carry several shared locks or one exclusive
// lock, and depth-infinity locks conflict with any descendant mutation.
type LockManager struct {
	mu    sync.Mutex
	locks map[string][]*Lock
	done  chan struct{}
	once  sync.Once
}

// NewLockManager creates a lock manager and starts its expiry sweep.
func NewLockManager() *LockManager {
	lm := &LockManager{
		locks: make(map[string][]*Lock),
		done:  make(chan struct{}),
	}
	go lm.sweep()
	return lm
}

// Close stops the background sweep.
func (lm *LockManager) Close() {
	lm.once.Do(func() { close(lm.done) })
}

func (lm *LockManager) sweep() {
	ticker := time.NewTicker(lockSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-lm.done:
			return
		case now := <-ticker.C:
			lm.mu.Lock()
			for path := range lm.locks {
				lm.pruneLocked(path, now)
			}
			lm.mu.Unlock()
		}
	}
}

// ClampTimeout bounds a requested lock timeout. Zero means the default.
func ClampTimeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return DefaultLockTimeout
	}
	if requested < MinLockTimeout {
		return MinLockTimeout
	}
	if requested > MaxLockTimeout {
		return MaxLockTimeout
	}
	return requested
}

// overlaps reports whether a lock at lockPath with the given depth covers
// target, or target covers lockPath (locking a parent of a locked child also
// conflicts).
func overlaps(lockPath string, depth int, target string) bool {
	if lockPath == target {
		return true
	}
	if depth == depthInfinity && coveredBy(target, lockPath) {
		return true
	}
	return coveredBy(lockPath, target)
}

// coveredBy reports whether path sits under ancestor.
func coveredBy(path, ancestor string) bool {
	a := strings.TrimSuffix(ancestor, "/")
	return strings.HasPrefix(path, a+"/")
}

// pruneLocked drops expired locks at path. Caller holds lm.mu.
func (lm *LockManager) pruneLocked(path string, now time.Time) {
	kept := lm.locks[path][:0]
	for _, lock := range lm.locks[path] {
		if now.After(lock.ExpiresAt) {
			logger.Debug("expired lock removed", "path", path, "token", lock.Token)
			continue
		}
		kept = append(kept, lock)
	}
	if len(kept) == 0 {
		delete(lm.locks, path)
		return
	}
	lm.locks[path] = kept
}

// Acquire takes a new lock on path. An overlapping exclusive lock conflicts
// with anything; shared locks coexist with each other.
func (lm *LockManager) Acquire(ctx context.Context, path, owner string, depth int, exclusive bool, timeout time.Duration) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path = normalizeLockPath(path)
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := time.Now()
	for lockPath := range lm.locks {
		lm.pruneLocked(lockPath, now)
		for _, lock := range lm.locks[lockPath] {
			if (lock.Exclusive || exclusive) && overlaps(lockPath, lock.Depth, path) {
				return nil, gwerrors.NewWithPath(gwerrors.ErrLocked, "resource is locked", path)
			}
		}
	}

	lock := &Lock{
		Token:     "opaquelocktoken:" + uuid.NewString(),
		Path:      path,
		Owner:     owner,
		Depth:     depth,
		Exclusive: exclusive,
		ExpiresAt: now.Add(ClampTimeout(timeout)),
	}
	lm.locks[path] = append(lm.locks[path], lock)
	return lock, nil
}

// Refresh resets the expiry of an existing lock.
func (lm *LockManager) Refresh(path, token string, timeout time.Duration) (*Lock, error) {
	path = normalizeLockPath(path)
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.pruneLocked(path, time.Now())
	if len(lm.locks[path]) == 0 {
		return nil, gwerrors.NewWithPath(gwerrors.ErrNotFound, "no lock on resource", path)
	}
	for _, lock := range lm.locks[path] {
		if lock.Token == token {
			lock.ExpiresAt = time.Now().Add(ClampTimeout(timeout))
			return lock, nil
		}
	}
	return nil, gwerrors.NewWithPath(gwerrors.ErrPathForbidden, "lock token mismatch", path)
}

// Release removes a lock. A token mismatch is refused.
func (lm *LockManager) Release(path, token string) error {
	path = normalizeLockPath(path)
	lm.mu.Lock()
	defer lm.mu.Unlock()

	held := lm.locks[path]
	if len(held) == 0 {
		return gwerrors.NewWithPath(gwerrors.ErrConflict, "no lock on resource", path)
	}
	for i, lock := range held {
		if lock.Token == token {
			lm.locks[path] = append(held[:i], held[i+1:]...)
			if len(lm.locks[path]) == 0 {
				delete(lm.locks, path)
			}
			return nil
		}
	}
	return gwerrors.NewWithPath(gwerrors.ErrPathForbidden, "lock token mismatch", path)
}

// Forget drops any lock rooted at path without a token check. Used when the
// resource itself is deleted.
func (lm *LockManager) Forget(path string) {
	path = normalizeLockPath(path)
	lm.mu.Lock()
	defer lm.mu.Unlock()
	delete(lm.locks, path)
}

// Check gates a mutating method: for every lock entry covering the target,
// the request must present one of that entry's tokens in its If header. With
// shared locks, holding any one of the shared tokens suffices.
func (lm *LockManager) Check(path, ifHeader string) error {
	path = normalizeLockPath(path)
	tokens := parseIfTokens(ifHeader)

	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := time.Now()
	for lockPath := range lm.locks {
		lm.pruneLocked(lockPath, now)
		covering := false
		satisfied := false
		for _, lock := range lm.locks[lockPath] {
			if !overlaps(lockPath, lock.Depth, path) {
				continue
			}
			covering = true
			if tokens[lock.Token] {
				satisfied = true
				break
			}
		}
		if covering && !satisfied {
			return gwerrors.NewWithPath(gwerrors.ErrLocked, "resource is locked", path)
		}
	}
	return nil
}

// Lookup returns an active lock covering path, if any.
func (lm *LockManager) Lookup(path string) *Lock {
	path = normalizeLockPath(path)
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := time.Now()
	for lockPath := range lm.locks {
		lm.pruneLocked(lockPath, now)
		for _, lock := range lm.locks[lockPath] {
			if overlaps(lockPath, lock.Depth, path) {
				return lock
			}
		}
	}
	return nil
}

func normalizeLockPath(path string) string {
	if p, err := vpath.Canonicalize(path); err == nil {
		return strings.TrimSuffix(p, "/")
	}
	return strings.TrimSuffix(path, "/")
}

// parseIfTokens extracts opaquelocktoken URIs from an If header. Both the
// tagged-list and no-tag-list productions reduce to scanning for
// angle-bracketed tokens.
func parseIfTokens(ifHeader string) map[string]bool {
	tokens := make(map[string]bool)
	rest := ifHeader
	for {
		start := strings.Index(rest, "<")
		if start < 0 {
			return tokens
		}
		end := strings.Index(rest[start:], ">")
		if end < 0 {
			return tokens
		}
		candidate := rest[start+1 : start+end]
		if strings.HasPrefix(candidate, "opaquelocktoken:") {
			tokens[candidate] = true
		}
		rest = rest[start+end+1:]
	}
}
