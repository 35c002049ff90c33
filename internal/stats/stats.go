// Package stats aggregates realized PnL into daily summaries.
package stats

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantrail/sentinel/internal/journal"
	"github.com/quantrail/sentinel/internal/schema"
)

// DaySummary is the realized trading result for one calendar day.
type DaySummary struct {
	Date     time.Time
	Trades   int
	Wins     int
	Losses   int
	TotalPnl decimal.Decimal
	MaxWin   decimal.Decimal
	MaxLoss  decimal.Decimal
}

// Report converts the summary into the notification payload.
func (d DaySummary) Report() schema.DailyReport {
	return schema.DailyReport{
		Date:     d.Date,
		Trades:   d.Trades,
		Wins:     d.Wins,
		Losses:   d.Losses,
		TotalPnl: d.TotalPnl,
		MaxWin:   d.MaxWin,
		MaxLoss:  d.MaxLoss,
	}
}

// WinRate returns the fraction of winning trades, zero when no trades closed.
func (d DaySummary) WinRate() decimal.Decimal {
	if d.Trades == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(d.Wins)).Div(decimal.NewFromInt(int64(d.Trades)))
}

type accumulator struct {
	days map[time.Time]*DaySummary
	loc  *time.Location
}

func newAccumulator(loc *time.Location) *accumulator {
	if loc == nil {
		loc = time.UTC
	}
	return &accumulator{days: make(map[time.Time]*DaySummary), loc: loc}
}

func (a *accumulator) add(at time.Time, pnl decimal.Decimal) {
	local := at.In(a.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, a.loc)
	summary, ok := a.days[day]
	if !ok {
		summary = &DaySummary{Date: day}
		a.days[day] = summary
	}
	summary.Trades++
	switch {
	case pnl.IsPositive():
		summary.Wins++
		if pnl.GreaterThan(summary.MaxWin) {
			summary.MaxWin = pnl
		}
	case pnl.IsNegative():
		summary.Losses++
		if pnl.LessThan(summary.MaxLoss) {
			summary.MaxLoss = pnl
		}
	}
	summary.TotalPnl = summary.TotalPnl.Add(pnl)
}

func (a *accumulator) sorted() []DaySummary {
	out := make([]DaySummary, 0, len(a.days))
	for _, summary := range a.days {
		out = append(out, *summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// DailyFromRecords groups closed-PnL ledger records into per-day summaries in
// the given location. Records with unparseable timestamps are skipped.
func DailyFromRecords(records []schema.ClosedPnlRecord, loc *time.Location) []DaySummary {
	acc := newAccumulator(loc)
	for _, rec := range records {
		ms, err := strconv.ParseInt(rec.CreatedTime, 10, 64)
		if err != nil || ms <= 0 {
			continue
		}
		acc.add(time.UnixMilli(ms), schema.DecimalOrZero(rec.ClosedPnl))
	}
	return acc.sorted()
}

// DailyFromTrades groups journaled trades into per-day summaries. Trades with
// unknown PnL count toward volume but not toward wins or losses.
func DailyFromTrades(trades []journal.Trade, loc *time.Location) []DaySummary {
	acc := newAccumulator(loc)
	for _, trade := range trades {
		pnl := decimal.Zero
		if trade.Pnl != nil {
			pnl = *trade.Pnl
		}
		acc.add(trade.ExecutedAt, pnl)
	}
	return acc.sorted()
}
