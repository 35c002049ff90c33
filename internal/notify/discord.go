// Package notify delivers Sentinel notifications to Discord webhooks.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/quantrail/sentinel/errs"
	"github.com/quantrail/sentinel/internal/config"
	"github.com/quantrail/sentinel/internal/schema"
)

const (
	colorGreen  = 0x2ECC71
	colorRed    = 0xE74C3C
	colorBlue   = 0x3498DB
	colorOrange = 0xE67E22
	colorGray   = 0x95A5A6

	postTimeout  = 10 * time.Second
	maxErrorBody = 2 << 10
)

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

// Discord posts notification embeds to webhooks. Realized-PnL results go to
// the dedicated PnL webhook; everything else uses the primary one.
type Discord struct {
	webhookURL    string
	pnlWebhookURL string
	httpClient    *http.Client
	logger        *log.Logger
}

// Option configures the notifier.
type Option func(*Discord)

// WithHTTPClient overrides the HTTP transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(d *Discord) {
		if hc != nil {
			d.httpClient = hc
		}
	}
}

// NewDiscord constructs a notifier from webhook configuration. An empty PnL
// webhook falls back to the primary one.
func NewDiscord(cfg config.DiscordConfig, logger *log.Logger, opts ...Option) (*Discord, error) {
	primary := strings.TrimSpace(cfg.WebhookURL)
	if primary == "" {
		return nil, errs.New("discord", errs.CodeInvalid, errs.WithMessage("webhook url required"))
	}
	pnl := strings.TrimSpace(cfg.PnlWebhookURL)
	if pnl == "" {
		pnl = primary
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Discord{
		webhookURL:    primary,
		pnlWebhookURL: pnl,
		httpClient:    &http.Client{Timeout: postTimeout},
		logger:        logger,
	}, nil
}

// Notify renders and posts one notification.
func (d *Discord) Notify(ctx context.Context, n schema.Notification) error {
	e, ok := render(n)
	if !ok {
		d.logger.Printf("no renderer for notification kind %q", n.Kind)
		return nil
	}
	target := d.webhookURL
	switch {
	case n.Kind == schema.KindDailyReport:
		target = d.pnlWebhookURL
	case n.Kind == schema.KindAggregatedFill && n.Fill != nil && n.Fill.Closing():
		target = d.pnlWebhookURL
	}
	return d.post(ctx, target, webhookPayload{Embeds: []embed{e}})
}

func (d *Discord) post(ctx context.Context, url string, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return errs.New("discord", errs.CodeNetwork,
			errs.WithMessage("post webhook"), errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errs.New("discord", errs.CodeExchange,
			errs.WithHTTP(resp.StatusCode),
			errs.WithMessage("webhook rejected"),
			errs.WithRawMessage(strings.TrimSpace(string(raw))))
	}
	return nil
}

func render(n schema.Notification) (embed, bool) {
	switch n.Kind {
	case schema.KindNewOrder:
		if n.Order == nil {
			return embed{}, false
		}
		return renderOrder("New Order", colorBlue, n), true
	case schema.KindModifiedOrder:
		if n.Order == nil {
			return embed{}, false
		}
		return renderOrder("Order Modified", colorOrange, n), true
	case schema.KindCancelledOrder:
		if n.Order == nil {
			return embed{}, false
		}
		return renderOrder("Order Cancelled", colorGray, n), true
	case schema.KindAggregatedFill:
		if n.Fill == nil {
			return embed{}, false
		}
		return renderFill(n), true
	case schema.KindTpSlChanged:
		if n.TpSl == nil {
			return embed{}, false
		}
		return renderTpSl(n), true
	case schema.KindPositionSnapshot:
		return renderSnapshot(n), true
	case schema.KindDailyReport:
		if n.Report == nil {
			return embed{}, false
		}
		return renderReport(n), true
	default:
		return embed{}, false
	}
}

func renderOrder(title string, color int, n schema.Notification) embed {
	order := n.Order
	e := embed{
		Title:     fmt.Sprintf("%s: %s", title, order.Symbol),
		Color:     color,
		Timestamp: n.At.UTC().Format(time.RFC3339),
	}
	e.Fields = append(e.Fields,
		embedField{Name: "Side", Value: valueOrDash(order.Side), Inline: true},
		embedField{Name: "Qty", Value: valueOrDash(order.Qty), Inline: true},
	)
	if order.Price != "" && schema.DecimalOrZero(order.Price).IsPositive() {
		e.Fields = append(e.Fields, embedField{Name: "Price", Value: order.Price, Inline: true})
	}
	if order.TriggerPrice != "" {
		e.Fields = append(e.Fields, embedField{Name: "Trigger", Value: order.TriggerPrice, Inline: true})
	}
	if order.TakeProfit != "" {
		e.Fields = append(e.Fields, embedField{Name: "TP", Value: order.TakeProfit, Inline: true})
	}
	if order.StopLoss != "" {
		e.Fields = append(e.Fields, embedField{Name: "SL", Value: order.StopLoss, Inline: true})
	}
	e.Fields = append(e.Fields, positionsField(n.Positions))
	return e
}

func renderFill(n schema.Notification) embed {
	fill := n.Fill
	title := "Fill"
	color := colorBlue
	switch fill.CloseType {
	case schema.CloseTakeProfit:
		title = "Take Profit Hit"
		color = colorGreen
	case schema.CloseStopLoss:
		title = "Stop Loss Hit"
		color = colorRed
	case schema.CloseTrailingStop:
		title = "Trailing Stop Hit"
		color = colorOrange
	case schema.CloseLiquidation:
		title = "Liquidation"
		color = colorRed
	}
	e := embed{
		Title:     fmt.Sprintf("%s: %s", title, fill.Symbol),
		Color:     color,
		Timestamp: n.At.UTC().Format(time.RFC3339),
	}
	e.Fields = append(e.Fields,
		embedField{Name: "Side", Value: valueOrDash(fill.Side), Inline: true},
		embedField{Name: "Qty", Value: fill.Quantity.String(), Inline: true},
		embedField{Name: "Avg Price", Value: fill.Price.String(), Inline: true},
	)
	switch {
	case fill.Pnl != nil:
		value := fill.Pnl.String() + " USDT"
		if fill.Pnl.IsNegative() {
			e.Color = colorRed
		} else {
			e.Color = colorGreen
		}
		e.Fields = append(e.Fields, embedField{Name: "Realized PnL", Value: value, Inline: true})
	case fill.Closing():
		e.Fields = append(e.Fields, embedField{Name: "Realized PnL", Value: "unavailable", Inline: true})
	}
	e.Fields = append(e.Fields, positionsField(n.Positions))
	return e
}

func renderTpSl(n schema.Notification) embed {
	change := n.TpSl
	return embed{
		Title:     fmt.Sprintf("TP/SL Updated: %s", change.Symbol),
		Color:     colorOrange,
		Timestamp: n.At.UTC().Format(time.RFC3339),
		Fields: []embedField{
			{Name: "Side", Value: valueOrDash(change.Side), Inline: true},
			{Name: "Entry", Value: valueOrDash(change.EntryPrice), Inline: true},
			{Name: "TP", Value: triggerOrNone(change.TakeProfit), Inline: true},
			{Name: "SL", Value: triggerOrNone(change.StopLoss), Inline: true},
			positionsField(n.Positions),
		},
	}
}

// positionsField summarizes the account's live positions under every trade
// alert, so a single message carries full context.
func positionsField(positions map[string]schema.Position) embedField {
	field := embedField{Name: "Account Positions", Value: "none"}
	symbols := openSymbols(positions)
	if len(symbols) == 0 {
		return field
	}

	var sb strings.Builder
	for _, symbol := range symbols {
		pos := positions[symbol]
		fmt.Fprintf(&sb, "**%s** %s %s @ %s · TP %s / SL %s",
			pos.Symbol, pos.Side, pos.Size, valueOrDash(pos.EntryPrice),
			triggerOrNone(pos.TakeProfit), triggerOrNone(pos.StopLoss))
		if pos.UnrealisedPnl != "" {
			fmt.Fprintf(&sb, " (uPnL %s)", pos.UnrealisedPnl)
		}
		sb.WriteByte('\n')
	}
	field.Value = strings.TrimRight(sb.String(), "\n")
	return field
}

// openSymbols returns the sorted symbols with live size; the cache keeps flat
// positions, the renderer hides them.
func openSymbols(positions map[string]schema.Position) []string {
	symbols := make([]string, 0, len(positions))
	for symbol, pos := range positions {
		if pos.Flat() {
			continue
		}
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func renderSnapshot(n schema.Notification) embed {
	e := embed{
		Title:     "Open Positions",
		Color:     colorBlue,
		Timestamp: n.At.UTC().Format(time.RFC3339),
	}
	symbols := openSymbols(n.Positions)

	var sb strings.Builder
	for _, symbol := range symbols {
		pos := n.Positions[symbol]
		fmt.Fprintf(&sb, "**%s** %s %s @ %s", pos.Symbol, pos.Side, pos.Size, pos.EntryPrice)
		if pos.UnrealisedPnl != "" {
			fmt.Fprintf(&sb, " (uPnL %s)", pos.UnrealisedPnl)
		}
		sb.WriteByte('\n')
	}
	e.Description = strings.TrimRight(sb.String(), "\n")
	e.Footer = &embedFooter{Text: fmt.Sprintf("%d open position(s)", len(symbols))}
	return e
}

func renderReport(n schema.Notification) embed {
	report := n.Report
	color := colorGreen
	if report.TotalPnl.IsNegative() {
		color = colorRed
	} else if report.Trades == 0 {
		color = colorGray
	}
	e := embed{
		Title:     fmt.Sprintf("Daily PnL: %s", report.Date.Format("2006-01-02")),
		Color:     color,
		Timestamp: n.At.UTC().Format(time.RFC3339),
		Fields: []embedField{
			{Name: "Realized PnL", Value: report.TotalPnl.String() + " USDT", Inline: true},
			{Name: "Trades", Value: fmt.Sprintf("%d (%dW/%dL)", report.Trades, report.Wins, report.Losses), Inline: true},
		},
	}
	if report.Trades > 0 {
		e.Fields = append(e.Fields,
			embedField{Name: "Best", Value: report.MaxWin.String(), Inline: true},
			embedField{Name: "Worst", Value: report.MaxLoss.String(), Inline: true},
		)
	}
	if report.Equity != "" {
		e.Footer = &embedFooter{Text: "Equity: " + report.Equity + " USDT"}
	}
	return e
}

func valueOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func triggerOrNone(s string) string {
	if !schema.DecimalOrZero(s).IsPositive() {
		return "none"
	}
	return s
}
