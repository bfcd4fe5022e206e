package session_test

import (
	"fmt"
	"sync"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/session"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: baseTime}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testRecord(tenantID, userID, id string, created time.Time) session.Record {
	return session.Record{
		ID:               id,
		AccessToken:      "at-" + id,
		RefreshToken:     "rt-" + id,
		UserID:           userID,
		TenantID:         tenantID,
		CreatedAt:        created,
		AccessExpiresAt:  created.Add(time.Hour),
		RefreshExpiresAt: created.Add(24 * time.Hour),
		Metadata:         map[string]string{"origin": "test"},
	}
}

func seqIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("s%03d", n)
	}
}
