package monitor

import (
	"context"

	"github.com/quantrail/sentinel/internal/schema"
)

// handleOrder classifies an order event against the active set. Conditional
// TP/SL orders are cached for later fill attribution but produce no order
// notifications of their own; trigger changes surface through the position
// stream instead. Reduce-only and close-on-trigger orders are protective
// orders on an existing position and report as modifications, never as new
// directional orders.
func (m *Monitor) handleOrder(ctx context.Context, ev schema.OrderEvent) {
	if ev.OrderID == "" {
		m.metrics.recordMalformed(ctx)
		m.logger.Printf("dropping order event without id")
		return
	}

	m.state.mu.Lock()
	if ev.StopOrderType.Conditional() {
		m.state.stopTypes[ev.OrderID] = ev.StopOrderType
		m.state.mu.Unlock()
		return
	}

	var kind schema.NotificationKind
	switch {
	case ev.Status != nil && (*ev.Status).Terminal():
		// Removal is idempotent; the set empties on every reconnect, so
		// membership says nothing about whether the cancellation is news.
		delete(m.state.activeOrders, ev.OrderID)
		if *ev.Status != schema.StatusFilled {
			kind = schema.KindCancelledOrder
		}
		// Filled emits nothing here; fills belong to the execution
		// aggregator.
	case ev.Status == nil:
		// Delta update to an existing order.
		kind = schema.KindModifiedOrder
	case *ev.Status == schema.StatusNew || *ev.Status == schema.StatusUntriggered:
		switch {
		case ev.ReduceOnly || ev.CloseOnTrigger:
			kind = schema.KindModifiedOrder
		default:
			if _, known := m.state.activeOrders[ev.OrderID]; known {
				kind = schema.KindModifiedOrder
			} else {
				m.state.activeOrders[ev.OrderID] = struct{}{}
				kind = schema.KindNewOrder
			}
		}
	default:
		m.logger.Printf("ignoring order %s with status %q", ev.OrderID, *ev.Status)
	}
	m.state.mu.Unlock()

	if kind == "" {
		return
	}
	order := ev
	m.publish(schema.Notification{Kind: kind, Order: &order})
}
