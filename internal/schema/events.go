package schema

import (
	"strings"

	"github.com/shopspring/decimal"
)

// OrderStatus is the venue-reported lifecycle state of an order.
type OrderStatus string

const (
	StatusNew         OrderStatus = "New"
	StatusUntriggered OrderStatus = "Untriggered"
	StatusCancelled   OrderStatus = "Cancelled"
	StatusDeactivated OrderStatus = "Deactivated"
	StatusFilled      OrderStatus = "Filled"
)

// Terminal reports whether the status ends the order's lifecycle.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusCancelled, StatusDeactivated, StatusFilled:
		return true
	default:
		return false
	}
}

// StopOrderType classifies conditional orders attached to a position.
type StopOrderType string

const (
	StopTypeTakeProfit   StopOrderType = "TakeProfit"
	StopTypeStopLoss     StopOrderType = "StopLoss"
	StopTypeTrailingStop StopOrderType = "TrailingStop"
)

// Conditional reports whether the type names a TP/SL/trailing trigger.
func (t StopOrderType) Conditional() bool {
	switch t {
	case StopTypeTakeProfit, StopTypeStopLoss, StopTypeTrailingStop:
		return true
	default:
		return false
	}
}

// ExecType classifies a single execution record.
type ExecType string

const (
	ExecTypeTrade   ExecType = "Trade"
	ExecTypeFunding ExecType = "Funding"
	// ExecTypeBustTrade marks a liquidation fill.
	ExecTypeBustTrade ExecType = "BustTrade"
)

// CloseType names the reason a position was closed.
type CloseType string

const (
	CloseTakeProfit   CloseType = "TakeProfit"
	CloseStopLoss     CloseType = "StopLoss"
	CloseTrailingStop CloseType = "TrailingStop"
	CloseLiquidation  CloseType = "Liquidation"
)

// OrderEvent is a single order-update record from the order topic. Status is a
// pointer because delta updates omit it entirely.
type OrderEvent struct {
	OrderID        string        `json:"orderId"`
	Symbol         string        `json:"symbol"`
	Side           string        `json:"side"`
	Status         *OrderStatus  `json:"orderStatus,omitempty"`
	OrderType      string        `json:"orderType"`
	StopOrderType  StopOrderType `json:"stopOrderType"`
	Price          string        `json:"price"`
	Qty            string        `json:"qty"`
	TriggerPrice   string        `json:"triggerPrice"`
	TakeProfit     string        `json:"takeProfit"`
	StopLoss       string        `json:"stopLoss"`
	ReduceOnly     bool          `json:"reduceOnly"`
	CloseOnTrigger bool          `json:"closeOnTrigger"`
	CreatedTime    string        `json:"createdTime"`
	UpdatedTime    string        `json:"updatedTime"`
}

// ExecutionEvent is a single fill record from the execution topic.
type ExecutionEvent struct {
	OrderID       string        `json:"orderId"`
	Symbol        string        `json:"symbol"`
	Side          string        `json:"side"`
	ExecType      ExecType      `json:"execType"`
	ExecQty       string        `json:"execQty"`
	ExecPrice     string        `json:"execPrice"`
	ExecTime      string        `json:"execTime"`
	StopOrderType StopOrderType `json:"stopOrderType"`
	IsMaker       bool          `json:"isMaker"`
	ClosedSize    string        `json:"closedSize"`
}

// PositionEvent is a partial or full position record from the position topic.
// Mergeable fields are pointers: the feed delivers partial snapshots and a
// missing key must not clobber previously known state, while an empty string
// is a real value (a cleared TP/SL).
type PositionEvent struct {
	Symbol        string  `json:"symbol"`
	Side          *string `json:"side,omitempty"`
	Size          *string `json:"size,omitempty"`
	AvgPrice      *string `json:"avgPrice,omitempty"`
	EntryPrice    *string `json:"entryPrice,omitempty"`
	TakeProfit    *string `json:"takeProfit,omitempty"`
	StopLoss      *string `json:"stopLoss,omitempty"`
	UnrealisedPnl *string `json:"unrealisedPnl,omitempty"`
	PositionValue *string `json:"positionValue,omitempty"`
	Leverage      *string `json:"leverage,omitempty"`
}

// Position is the merged per-symbol position state maintained by the tracker.
type Position struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Size          string `json:"size"`
	EntryPrice    string `json:"entryPrice"`
	TakeProfit    string `json:"takeProfit"`
	StopLoss      string `json:"stopLoss"`
	UnrealisedPnl string `json:"unrealisedPnl"`
	PositionValue string `json:"positionValue"`
	Leverage      string `json:"leverage"`
}

// Merge folds a position event into the state, field by field.
func (p *Position) Merge(ev PositionEvent) {
	if ev.Symbol != "" {
		p.Symbol = ev.Symbol
	}
	if ev.Side != nil {
		p.Side = *ev.Side
	}
	if ev.Size != nil {
		p.Size = *ev.Size
	}
	if ev.AvgPrice != nil {
		p.EntryPrice = *ev.AvgPrice
	} else if ev.EntryPrice != nil {
		p.EntryPrice = *ev.EntryPrice
	}
	if ev.TakeProfit != nil {
		p.TakeProfit = *ev.TakeProfit
	}
	if ev.StopLoss != nil {
		p.StopLoss = *ev.StopLoss
	}
	if ev.UnrealisedPnl != nil {
		p.UnrealisedPnl = *ev.UnrealisedPnl
	}
	if ev.PositionValue != nil {
		p.PositionValue = *ev.PositionValue
	}
	if ev.Leverage != nil {
		p.Leverage = *ev.Leverage
	}
}

// Flat reports whether the position size is zero or unparseable.
func (p Position) Flat() bool {
	return !DecimalOrZero(p.Size).IsPositive()
}

// ClosedPnlRecord is one realized-PnL row from the venue's closed-PnL ledger.
type ClosedPnlRecord struct {
	OrderID       string `json:"orderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Qty           string `json:"qty"`
	ClosedSize    string `json:"closedSize"`
	AvgEntryPrice string `json:"avgEntryPrice"`
	AvgExitPrice  string `json:"avgExitPrice"`
	ClosedPnl     string `json:"closedPnl"`
	CreatedTime   string `json:"createdTime"`
}

// WalletCoin is one per-coin row from the wallet-balance endpoint.
type WalletCoin struct {
	Coin          string `json:"coin"`
	Equity        string `json:"equity"`
	WalletBalance string `json:"walletBalance"`
	UnrealisedPnl string `json:"unrealisedPnl"`
}

// DecimalOrZero parses a venue-formatted numeric string, treating empty or
// malformed values as zero. The feed encodes "no TP set" as "".
func DecimalOrZero(s string) decimal.Decimal {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero
	}
	return d
}
