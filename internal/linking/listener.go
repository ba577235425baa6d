package linking

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openredstone/linkore/internal/domain"
)

// DefaultDebounce is the quiet window before a permission change triggers a
// sync. Permission recalculations often arrive in bursts, one per inherited
// group; only the last event of a burst matters.
const DefaultDebounce = 500 * time.Millisecond

// SyncTrigger is the slice of the coordinator the listener needs.
type SyncTrigger interface {
	SyncByUUID(ctx context.Context, id uuid.UUID) error
}

// Listener debounces permission-change events per player and triggers a
// reconciliation once a player has been quiet for the configured window.
// Events for different players debounce independently.
type Listener struct {
	svc  SyncTrigger
	wait time.Duration

	mu      sync.Mutex
	pending map[uuid.UUID]*time.Timer
	stopped bool
}

// NewListener creates a listener. A zero wait means DefaultDebounce.
func NewListener(svc SyncTrigger, wait time.Duration) *Listener {
	if wait == 0 {
		wait = DefaultDebounce
	}
	return &Listener{
		svc:     svc,
		wait:    wait,
		pending: make(map[uuid.UUID]*time.Timer),
	}
}

// HandleChange schedules a sync for the player, replacing any sync already
// pending for them. Events with an unparseable UUID are dropped.
func (l *Listener) HandleChange(change domain.PermissionChange) {
	id, err := uuid.Parse(change.UUID)
	if err != nil {
		log.Printf("linking: dropping permission change with bad uuid %q", change.UUID)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	if timer, ok := l.pending[id]; ok {
		timer.Stop()
	}
	l.pending[id] = time.AfterFunc(l.wait, func() { l.fire(id) })
}

// Stop cancels all pending syncs. Events arriving afterwards are ignored.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	for id, timer := range l.pending {
		timer.Stop()
		delete(l.pending, id)
	}
}

func (l *Listener) fire(id uuid.UUID) {
	l.mu.Lock()
	delete(l.pending, id)
	l.mu.Unlock()

	err := l.svc.SyncByUUID(context.Background(), id)
	if err == nil || errors.Is(err, ErrNotLinked) {
		// Unlinked players just have nothing to sync
		return
	}
	log.Printf("linking: syncing %s after permission change: %v", id, err)
}
