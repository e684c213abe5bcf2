package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainerrors "governor/contexts/treasury-governance/governance-engine/domain/errors"
)

// KeyedLocker is an in-process mutex per proposal id. Entries are dropped
// once no goroutine holds or waits for them.
type KeyedLocker struct {
	mu    sync.Mutex
	slots map[uint64]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{slots: make(map[uint64]*lockSlot)}
}

func (l *KeyedLocker) Lock(ctx context.Context, proposalID uint64) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[proposalID]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[proposalID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(proposalID, slot)
		return nil, fmt.Errorf("%w: %w", domainerrors.ErrLockUnavailable, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			l.release(proposalID, slot)
		})
	}, nil
}

func (l *KeyedLocker) release(proposalID uint64, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, proposalID)
	}
}

// SystemClock reads wall-clock time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
