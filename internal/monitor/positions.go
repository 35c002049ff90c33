package monitor

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/quantrail/sentinel/internal/schema"
)

// tpslEpsilon bounds the numeric jitter tolerated when comparing trigger
// prices against the committed baseline.
var tpslEpsilon = decimal.New(1, -6)

// handlePosition merges a partial position record into the per-symbol state,
// debounces TP/SL changes, and throttles position snapshots.
//
// The first sighting of a symbol commits the baseline silently; alerting on
// it would replay every pre-existing trigger after a restart.
func (m *Monitor) handlePosition(ctx context.Context, ev schema.PositionEvent) {
	if ev.Symbol == "" {
		m.metrics.recordMalformed(ctx)
		m.logger.Printf("dropping position event without symbol")
		return
	}
	symbol := ev.Symbol
	debounceKey := "tpsl:" + symbol

	m.state.mu.Lock()
	pos := m.state.positions[symbol]
	pos.Merge(ev)
	// Size 0 is a valid state, not a deletion: the baseline must survive a
	// close so a reopen with a different trigger still alerts.
	m.state.positions[symbol] = pos
	flat := pos.Flat()

	baseline, seen := m.state.baselines[symbol]
	if !seen {
		m.state.baselines[symbol] = tpslBaseline{tp: pos.TakeProfit, sl: pos.StopLoss}
		m.state.mu.Unlock()
		if !flat {
			m.maybeSnapshot(symbol)
		}
		return
	}
	changed := !triggerEqual(pos.TakeProfit, baseline.tp) || !triggerEqual(pos.StopLoss, baseline.sl)
	m.state.mu.Unlock()

	if changed {
		if flat {
			// No alert for triggers on a flat position; the baseline stays
			// uncommitted so the change reports once the position is live.
			m.logger.Printf("suppressing tp/sl change on flat %s", symbol)
			return
		}
		// Each further change restarts the window; the alert fires once
		// the values hold still.
		m.timers.Schedule(debounceKey, m.cfg.TpSlDebounce, func() {
			m.commitTpsl(symbol)
		})
		return
	}
	if m.timers.Cancel(debounceKey) {
		m.logger.Printf("tp/sl change on %s reverted within debounce window", symbol)
	}
	if !flat {
		m.maybeSnapshot(symbol)
	}
}

// commitTpsl fires after the debounce window. The position is re-read under
// the lock: a revert or close that raced the timer wins.
func (m *Monitor) commitTpsl(symbol string) {
	m.state.mu.Lock()
	pos, open := m.state.positions[symbol]
	if !open || pos.Flat() {
		m.state.mu.Unlock()
		return
	}
	baseline := m.state.baselines[symbol]
	if triggerEqual(pos.TakeProfit, baseline.tp) && triggerEqual(pos.StopLoss, baseline.sl) {
		m.state.mu.Unlock()
		return
	}
	m.state.baselines[symbol] = tpslBaseline{tp: pos.TakeProfit, sl: pos.StopLoss}
	// The alert itself shows the position; no snapshot needed right after.
	m.state.lastSnapshot[symbol] = m.now()
	m.state.mu.Unlock()

	change := schema.TpSlChange{
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		TakeProfit: pos.TakeProfit,
		StopLoss:   pos.StopLoss,
	}
	m.publish(schema.Notification{Kind: schema.KindTpSlChanged, TpSl: &change})
}

// maybeSnapshot publishes a full position snapshot unless one went out for
// this symbol within the cooldown.
func (m *Monitor) maybeSnapshot(symbol string) {
	m.state.mu.Lock()
	pos := m.state.positions[symbol]
	if pos.Flat() {
		m.state.mu.Unlock()
		return
	}
	now := m.now()
	if last, ok := m.state.lastSnapshot[symbol]; ok && now.Sub(last) < m.cfg.SnapshotCooldown {
		m.state.mu.Unlock()
		return
	}
	m.state.lastSnapshot[symbol] = now
	view := m.state.positionsView()
	m.state.mu.Unlock()

	m.publish(schema.Notification{Kind: schema.KindPositionSnapshot, Position: &pos, Positions: view})
}

// triggerEqual compares two venue-formatted trigger prices numerically.
// Unset triggers arrive as "" or "0" and compare equal.
func triggerEqual(a, b string) bool {
	diff := schema.DecimalOrZero(a).Sub(schema.DecimalOrZero(b)).Abs()
	return diff.LessThan(tpslEpsilon)
}
