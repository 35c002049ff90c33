package monitor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const closedPnlPageSize = 50

// lookupClosedPnl correlates an order id against the venue's closed-PnL
// ledger. The record lands with some delay after the fill, so the lookup
// retries a bounded number of times before giving up. A nil result means the
// record never appeared; zero PnL is a valid result and is returned as such.
func (m *Monitor) lookupClosedPnl(ctx context.Context, orderID string) *decimal.Decimal {
	attempts := m.cfg.PnlAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		records, err := m.exchange.ClosedPnl(ctx, m.category, closedPnlPageSize)
		if err != nil {
			m.logger.Printf("closed-pnl lookup for %s (attempt %d/%d): %v", orderID, attempt, attempts, err)
		} else {
			for _, rec := range records {
				if rec.OrderID != orderID {
					continue
				}
				pnl, perr := decimal.NewFromString(rec.ClosedPnl)
				if perr != nil {
					m.logger.Printf("closed-pnl record for %s has bad value %q: %v", orderID, rec.ClosedPnl, perr)
					break
				}
				return &pnl
			}
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			m.metrics.recordPnlMiss(ctx)
			return nil
		case <-time.After(m.cfg.PnlRetryDelay):
		}
	}
	m.metrics.recordPnlMiss(ctx)
	m.logger.Printf("no closed-pnl record for %s after %d attempts", orderID, attempts)
	return nil
}
