package monitor

import (
	"context"
	"strconv"
	"time"

	"github.com/quantrail/sentinel/internal/schema"
)

// handleExecution buffers a fill behind the settle window keyed by order id
// so partial fills of the same order collapse into one notification. Funding
// flows are not trades and are dropped; fills without an order id cannot be
// correlated and are emitted as-is.
func (m *Monitor) handleExecution(ctx context.Context, ev schema.ExecutionEvent) {
	if ev.ExecType == schema.ExecTypeFunding {
		return
	}
	qty := schema.DecimalOrZero(ev.ExecQty)
	price := schema.DecimalOrZero(ev.ExecPrice)
	if !qty.IsPositive() {
		m.metrics.recordMalformed(ctx)
		m.logger.Printf("dropping execution with non-positive qty %q (%s)", ev.ExecQty, ev.Symbol)
		return
	}

	if ev.OrderID == "" {
		fill := schema.AggregatedFill{
			Symbol:    ev.Symbol,
			Side:      ev.Side,
			Quantity:  qty,
			Price:     price,
			CloseType: closeTypeFor(ev.StopOrderType, ev.ExecType),
			ExecTime:  m.execTime(ev.ExecTime),
		}
		m.emitFill(fill)
		return
	}

	m.state.mu.Lock()
	buf, ok := m.state.fills[ev.OrderID]
	if !ok {
		buf = &fillBuffer{first: ev, firstSeen: m.now()}
		m.state.fills[ev.OrderID] = buf
	}
	buf.merge(qty, price)
	m.state.mu.Unlock()
	m.metrics.recordFillBuffered(ctx)

	// Every partial restarts the window, so a burst of fills for one order
	// settles into a single notification.
	orderID := ev.OrderID
	m.timers.Schedule("fill:"+orderID, m.cfg.SettleWindow, func() {
		m.flushFill(orderID)
	})
}

// flushFill drains the settled buffer for orderID and emits the aggregated
// fill. The stop-type cache from the order stream takes precedence over the
// type reported on the execution itself, and is consumed either way.
func (m *Monitor) flushFill(orderID string) {
	m.state.mu.Lock()
	buf, ok := m.state.fills[orderID]
	if !ok {
		m.state.mu.Unlock()
		return
	}
	delete(m.state.fills, orderID)

	stopType := buf.first.StopOrderType
	if cached, hit := m.state.stopTypes[orderID]; hit {
		stopType = cached
	}
	delete(m.state.stopTypes, orderID)
	m.state.mu.Unlock()

	fill := schema.AggregatedFill{
		OrderID:   orderID,
		Symbol:    buf.first.Symbol,
		Side:      buf.first.Side,
		Quantity:  buf.qty,
		Price:     buf.price,
		CloseType: closeTypeFor(stopType, buf.first.ExecType),
		ExecTime:  m.execTime(buf.first.ExecTime),
	}
	m.emitFill(fill)
}

// flushAllFills drains every pending buffer immediately. Called on session
// teardown, after the flush timers have been stopped, so no buffered fill is
// stranded across a reconnect.
func (m *Monitor) flushAllFills() {
	m.state.mu.Lock()
	ids := make([]string, 0, len(m.state.fills))
	for id := range m.state.fills {
		ids = append(ids, id)
	}
	m.state.mu.Unlock()

	for _, id := range ids {
		m.timers.Cancel("fill:" + id)
		m.flushFill(id)
	}
}

// emitFill finalizes an aggregated fill off the consumer path: the PnL lookup
// blocks a pool worker, never the read loop. The lookup runs for every
// correlatable fill; an opening fill simply never finds a ledger record and
// surfaces no PnL.
func (m *Monitor) emitFill(fill schema.AggregatedFill) {
	m.state.mu.Lock()
	view := m.state.positionsView()
	m.state.mu.Unlock()

	err := m.pool.Submit(context.Background(), func(ctx context.Context) error {
		if fill.OrderID != "" {
			fill.Pnl = m.lookupClosedPnl(ctx, fill.OrderID)
		}
		if m.journal != nil && fill.OrderID != "" {
			if err := m.journal.RecordFill(ctx, fill); err != nil {
				m.logger.Printf("journal fill %s: %v", fill.OrderID, err)
			}
		}
		n := schema.Notification{Kind: schema.KindAggregatedFill, Fill: &fill, Positions: view, At: m.now()}
		m.metrics.recordNotification(ctx, n.Kind)
		return m.notifier.Notify(ctx, n)
	})
	if err != nil {
		m.logger.Printf("fill notification for %s dropped: %v", fill.Symbol, err)
	}
}

// closeTypeFor maps the resolved stop type, or a liquidation execution, to
// the reported close reason.
func closeTypeFor(stopType schema.StopOrderType, execType schema.ExecType) schema.CloseType {
	if execType == schema.ExecTypeBustTrade {
		return schema.CloseLiquidation
	}
	switch stopType {
	case schema.StopTypeTakeProfit:
		return schema.CloseTakeProfit
	case schema.StopTypeStopLoss:
		return schema.CloseStopLoss
	case schema.StopTypeTrailingStop:
		return schema.CloseTrailingStop
	default:
		return ""
	}
}

// execTime parses the venue's millisecond timestamp, falling back to the
// local clock.
func (m *Monitor) execTime(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return m.now()
	}
	return time.UnixMilli(ms)
}
