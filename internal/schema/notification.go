package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// NotificationKind discriminates the payload carried by a Notification.
type NotificationKind string

const (
	KindNewOrder         NotificationKind = "new_order"
	KindModifiedOrder    NotificationKind = "modified_order"
	KindCancelledOrder   NotificationKind = "cancelled_order"
	KindAggregatedFill   NotificationKind = "aggregated_fill"
	KindTpSlChanged      NotificationKind = "tpsl_changed"
	KindPositionSnapshot NotificationKind = "position_snapshot"
	KindDailyReport      NotificationKind = "daily_report"
)

// Notification is the single event type handed to the notification sink. Each
// payload carries a read-only copy of the merged position cache so the
// renderer never reaches back into tracker state.
type Notification struct {
	Kind      NotificationKind
	Order     *OrderEvent
	Fill      *AggregatedFill
	TpSl      *TpSlChange
	Position  *Position
	Positions map[string]Position
	Report    *DailyReport
	At        time.Time
}

// DailyReport is a realized-PnL summary for one calendar day.
type DailyReport struct {
	Date     time.Time
	Trades   int
	Wins     int
	Losses   int
	TotalPnl decimal.Decimal
	MaxWin   decimal.Decimal
	MaxLoss  decimal.Decimal
	// Equity is the account equity in the settlement coin at report time,
	// empty when the wallet lookup was skipped or failed.
	Equity string
}

// AggregatedFill is one or more fills for the same order merged into a single
// logical trade.
type AggregatedFill struct {
	OrderID  string
	Symbol   string
	Side     string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	// Pnl is nil when the closed-PnL record could not be correlated; zero is a
	// legitimate realized PnL and must not stand in for "unknown".
	Pnl       *decimal.Decimal
	CloseType CloseType
	ExecTime  time.Time
}

// Closing reports whether the fill carries a realized PnL, i.e. closed (part
// of) a position.
func (f AggregatedFill) Closing() bool {
	return f.Pnl != nil || f.CloseType != ""
}

// TpSlChange describes a debounced take-profit/stop-loss adjustment.
type TpSlChange struct {
	Symbol     string
	Side       string
	EntryPrice string
	TakeProfit string
	StopLoss   string
}
