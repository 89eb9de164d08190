package session

import (
	"context"
	"time"
)

// WaitForProfile blocks until the session is ready with a profile (true) or
// maxWait or ctx elapses (false). A false result means "proceed, the session
// will settle asynchronously", not a failure.
func (e *Engine) WaitForProfile(ctx context.Context, maxWait time.Duration) bool {
	ok, changed, closed := e.profileReady()
	if ok || closed || maxWait <= 0 {
		return ok
	}

	timeout := e.clock.After(maxWait, waitTimerID)
	for {
		select {
		case <-changed:
		case <-timeout:
			return false
		case <-ctx.Done():
			return false
		}
		ok, changed, closed = e.profileReady()
		if ok || closed {
			return ok
		}
	}
}

func (e *Engine) profileReady() (ok bool, changed <-chan struct{}, closed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.HasProfile(), e.settled, e.closed
}
