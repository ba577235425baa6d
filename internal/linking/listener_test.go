package linking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/openredstone/linkore/internal/domain"
)

// countingTrigger records sync calls per player.
type countingTrigger struct {
	mu    sync.Mutex
	calls map[uuid.UUID]int
	err   error
}

func newCountingTrigger() *countingTrigger {
	return &countingTrigger{calls: make(map[uuid.UUID]int)}
}

func (c *countingTrigger) SyncByUUID(ctx context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[id]++
	return c.err
}

func (c *countingTrigger) count(id uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id]
}

func change(id uuid.UUID) domain.PermissionChange {
	return domain.PermissionChange{UUID: id.String(), PrimaryGroup: "member"}
}

func TestRapidFireEventsCollapseToOneSync(t *testing.T) {
	trigger := newCountingTrigger()
	l := NewListener(trigger, 50*time.Millisecond)
	defer l.Stop()

	id := uuid.New()
	for i := 0; i < 5; i++ {
		l.HandleChange(change(id))
	}

	assert.Eventually(t, func() bool { return trigger.count(id) == 1 },
		2*time.Second, 10*time.Millisecond)

	// And it stays at one
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, trigger.count(id))
}

func TestEventsAfterQuietWindowSyncAgain(t *testing.T) {
	trigger := newCountingTrigger()
	l := NewListener(trigger, 20*time.Millisecond)
	defer l.Stop()

	id := uuid.New()
	l.HandleChange(change(id))
	assert.Eventually(t, func() bool { return trigger.count(id) == 1 },
		2*time.Second, 5*time.Millisecond)

	l.HandleChange(change(id))
	assert.Eventually(t, func() bool { return trigger.count(id) == 2 },
		2*time.Second, 5*time.Millisecond)
}

func TestDifferentUsersDebounceIndependently(t *testing.T) {
	trigger := newCountingTrigger()
	l := NewListener(trigger, 30*time.Millisecond)
	defer l.Stop()

	a, b := uuid.New(), uuid.New()
	l.HandleChange(change(a))
	l.HandleChange(change(b))
	// Keep refreshing a; b's window must still elapse on its own
	for i := 0; i < 3; i++ {
		time.Sleep(10 * time.Millisecond)
		l.HandleChange(change(a))
	}

	assert.Eventually(t, func() bool { return trigger.count(b) == 1 },
		2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return trigger.count(a) == 1 },
		2*time.Second, 5*time.Millisecond)
}

func TestUnlinkedPlayerIsNoop(t *testing.T) {
	trigger := newCountingTrigger()
	trigger.err = ErrNotLinked
	l := NewListener(trigger, 10*time.Millisecond)
	defer l.Stop()

	id := uuid.New()
	l.HandleChange(change(id))

	// The trigger is still called; ErrNotLinked is simply not an error
	assert.Eventually(t, func() bool { return trigger.count(id) == 1 },
		2*time.Second, 5*time.Millisecond)
}

func TestBadUUIDDropped(t *testing.T) {
	trigger := newCountingTrigger()
	l := NewListener(trigger, 10*time.Millisecond)
	defer l.Stop()

	l.HandleChange(domain.PermissionChange{UUID: "not-a-uuid"})
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, trigger.calls)
}

func TestStopCancelsPending(t *testing.T) {
	trigger := newCountingTrigger()
	l := NewListener(trigger, 50*time.Millisecond)

	id := uuid.New()
	l.HandleChange(change(id))
	l.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, trigger.count(id))

	// Events after Stop are ignored
	l.HandleChange(change(id))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, trigger.count(id))
}
