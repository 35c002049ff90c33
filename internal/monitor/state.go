package monitor

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantrail/sentinel/internal/schema"
)

// tpslBaseline is the last committed TP/SL pair used for change detection.
// Values are the venue's raw strings; comparison is numeric.
type tpslBaseline struct {
	tp string
	sl string
}

// fillBuffer accumulates partial fills for one order id behind the settle
// window.
type fillBuffer struct {
	first     schema.ExecutionEvent
	qty       decimal.Decimal
	price     decimal.Decimal
	firstSeen time.Time
}

// merge folds a new fill into the buffer using a quantity-weighted average
// price. A zero combined quantity falls back to the incoming price.
func (b *fillBuffer) merge(qty, price decimal.Decimal) {
	total := b.qty.Add(qty)
	if total.IsPositive() {
		weighted := b.qty.Mul(b.price).Add(qty.Mul(price))
		b.price = weighted.Div(total)
	} else {
		b.price = price
	}
	b.qty = total
}

// trackerState owns every mutable cache of the correlation engine. One coarse
// lock covers the consumer path and all timer callbacks; read-modify-write on
// a buffer or baseline slot is atomic with respect to its timer.
//
// Session-scoped state (activeOrders) is cleared on every successful
// reconnect. Durable state (positions, baselines) survives reconnects so a
// resubscribe does not replay TP/SL alerts.
type trackerState struct {
	mu           sync.Mutex
	activeOrders map[string]struct{}
	stopTypes    map[string]schema.StopOrderType
	fills        map[string]*fillBuffer
	positions    map[string]schema.Position
	baselines    map[string]tpslBaseline
	lastSnapshot map[string]time.Time
}

func newTrackerState() *trackerState {
	return &trackerState{
		activeOrders: make(map[string]struct{}),
		stopTypes:    make(map[string]schema.StopOrderType),
		fills:        make(map[string]*fillBuffer),
		positions:    make(map[string]schema.Position),
		baselines:    make(map[string]tpslBaseline),
		lastSnapshot: make(map[string]time.Time),
	}
}

// resetSession drops session-scoped state after a reconnect, keeping the
// durable position and baseline caches intact.
func (s *trackerState) resetSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeOrders = make(map[string]struct{})
}

// positionsView returns a copy of the merged position cache for inclusion in
// notification payloads.
func (s *trackerState) positionsView() map[string]schema.Position {
	view := make(map[string]schema.Position, len(s.positions))
	for symbol, pos := range s.positions {
		view[symbol] = pos
	}
	return view
}
