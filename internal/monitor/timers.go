package monitor

import (
	"sync"
	"time"
)

// keyedTimers schedules at most one pending callback per key. Cancellation is
// atomic with respect to firing: a slot cancelled under the lock never runs,
// even if the underlying timer already expired.
type keyedTimers struct {
	mu    sync.Mutex
	slots map[string]*timerSlot
}

type timerSlot struct {
	timer     *time.Timer
	cancelled bool
}

func newKeyedTimers() *keyedTimers {
	return &keyedTimers{slots: make(map[string]*timerSlot)}
}

// Schedule arms a timer for key, replacing any pending one.
func (k *keyedTimers) Schedule(key string, delay time.Duration, fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if prev, ok := k.slots[key]; ok {
		prev.cancelled = true
		prev.timer.Stop()
	}

	slot := &timerSlot{}
	slot.timer = time.AfterFunc(delay, func() {
		k.mu.Lock()
		if slot.cancelled {
			k.mu.Unlock()
			return
		}
		if k.slots[key] == slot {
			delete(k.slots, key)
		}
		k.mu.Unlock()
		fn()
	})
	k.slots[key] = slot
}

// Cancel disarms the pending timer for key, reporting whether one existed.
func (k *keyedTimers) Cancel(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	slot, ok := k.slots[key]
	if !ok {
		return false
	}
	slot.cancelled = true
	slot.timer.Stop()
	delete(k.slots, key)
	return true
}

// Pending reports whether a timer is armed for key.
func (k *keyedTimers) Pending(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.slots[key]
	return ok
}

// StopAll cancels every pending timer.
func (k *keyedTimers) StopAll() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, slot := range k.slots {
		slot.cancelled = true
		slot.timer.Stop()
		delete(k.slots, key)
	}
}
