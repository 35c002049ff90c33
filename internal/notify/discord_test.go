package notify

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/quantrail/sentinel/internal/config"
	"github.com/quantrail/sentinel/internal/schema"
)

type recordedPost struct {
	path    string
	payload webhookPayload
}

func newWebhookServer(t *testing.T) (*httptest.Server, func() []recordedPost) {
	t.Helper()

	var mu sync.Mutex
	var posts []recordedPost

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		mu.Lock()
		posts = append(posts, recordedPost{path: r.URL.Path, payload: payload})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []recordedPost {
		mu.Lock()
		defer mu.Unlock()
		out := make([]recordedPost, len(posts))
		copy(out, posts)
		return out
	}
}

func newTestDiscord(t *testing.T, srv *httptest.Server) *Discord {
	t.Helper()
	d, err := NewDiscord(config.DiscordConfig{
		WebhookURL:    srv.URL + "/primary",
		PnlWebhookURL: srv.URL + "/pnl",
	}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewDiscord: %v", err)
	}
	return d
}

func TestNewDiscordRequiresWebhook(t *testing.T) {
	if _, err := NewDiscord(config.DiscordConfig{}, nil); err == nil {
		t.Fatal("expected error for missing webhook url")
	}
}

func TestNotifyOrderGoesToPrimary(t *testing.T) {
	srv, posts := newWebhookServer(t)
	d := newTestDiscord(t, srv)

	err := d.Notify(context.Background(), schema.Notification{
		Kind: schema.KindNewOrder,
		Order: &schema.OrderEvent{
			Symbol: "BTCUSDT", Side: "Buy", Qty: "0.5", Price: "50000",
		},
		At: time.Now(),
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	got := posts()
	if len(got) != 1 {
		t.Fatalf("posts = %d, want 1", len(got))
	}
	if got[0].path != "/primary" {
		t.Errorf("path = %q, want /primary", got[0].path)
	}
	e := got[0].payload.Embeds[0]
	if !strings.Contains(e.Title, "BTCUSDT") {
		t.Errorf("title = %q, want symbol in it", e.Title)
	}
}

func TestNotifyClosingFillGoesToPnlWebhook(t *testing.T) {
	srv, posts := newWebhookServer(t)
	d := newTestDiscord(t, srv)

	pnl := decimal.NewFromFloat(-42.5)
	err := d.Notify(context.Background(), schema.Notification{
		Kind: schema.KindAggregatedFill,
		Fill: &schema.AggregatedFill{
			Symbol: "BTCUSDT", Side: "Sell",
			Quantity:  decimal.NewFromFloat(0.5),
			Price:     decimal.NewFromInt(48000),
			Pnl:       &pnl,
			CloseType: schema.CloseStopLoss,
		},
		At: time.Now(),
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	got := posts()
	if len(got) != 1 {
		t.Fatalf("posts = %d, want 1", len(got))
	}
	if got[0].path != "/pnl" {
		t.Errorf("path = %q, want /pnl", got[0].path)
	}
	e := got[0].payload.Embeds[0]
	if e.Color != colorRed {
		t.Errorf("color = %#x, want red for a loss", e.Color)
	}
	found := false
	for _, f := range e.Fields {
		if f.Name == "Realized PnL" && strings.Contains(f.Value, "-42.5") {
			found = true
		}
	}
	if !found {
		t.Error("realized pnl field missing")
	}
}

func TestNotifyFillWithUnknownPnl(t *testing.T) {
	srv, posts := newWebhookServer(t)
	d := newTestDiscord(t, srv)

	err := d.Notify(context.Background(), schema.Notification{
		Kind: schema.KindAggregatedFill,
		Fill: &schema.AggregatedFill{
			Symbol: "BTCUSDT", Side: "Sell",
			Quantity:  decimal.NewFromFloat(0.5),
			Price:     decimal.NewFromInt(48000),
			CloseType: schema.CloseTakeProfit,
		},
		At: time.Now(),
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	e := posts()[0].payload.Embeds[0]
	for _, f := range e.Fields {
		if f.Name == "Realized PnL" {
			if f.Value != "unavailable" {
				t.Errorf("pnl value = %q, want unavailable", f.Value)
			}
			return
		}
	}
	t.Error("realized pnl field missing")
}

func TestNotifySnapshotListsPositionsSorted(t *testing.T) {
	srv, posts := newWebhookServer(t)
	d := newTestDiscord(t, srv)

	err := d.Notify(context.Background(), schema.Notification{
		Kind:     schema.KindPositionSnapshot,
		Position: &schema.Position{Symbol: "ETHUSDT"},
		Positions: map[string]schema.Position{
			"ETHUSDT": {Symbol: "ETHUSDT", Side: "Buy", Size: "2", EntryPrice: "3000"},
			"BTCUSDT": {Symbol: "BTCUSDT", Side: "Buy", Size: "0.5", EntryPrice: "50000"},
		},
		At: time.Now(),
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	e := posts()[0].payload.Embeds[0]
	btc := strings.Index(e.Description, "BTCUSDT")
	eth := strings.Index(e.Description, "ETHUSDT")
	if btc == -1 || eth == -1 || btc > eth {
		t.Errorf("description not sorted by symbol: %q", e.Description)
	}
	if e.Footer == nil || !strings.Contains(e.Footer.Text, "2") {
		t.Errorf("footer = %+v, want position count", e.Footer)
	}
}

func TestNotifyOrderRendersAccountPositions(t *testing.T) {
	srv, posts := newWebhookServer(t)
	d := newTestDiscord(t, srv)

	err := d.Notify(context.Background(), schema.Notification{
		Kind:  schema.KindNewOrder,
		Order: &schema.OrderEvent{Symbol: "BTCUSDT", Side: "Buy", Qty: "0.5"},
		Positions: map[string]schema.Position{
			"BTCUSDT": {Symbol: "BTCUSDT", Side: "Buy", Size: "0.5", EntryPrice: "50000", TakeProfit: "55000"},
			"SOLUSDT": {Symbol: "SOLUSDT", Side: "Sell", Size: "0"},
		},
		At: time.Now(),
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	e := posts()[0].payload.Embeds[0]
	for _, f := range e.Fields {
		if f.Name != "Account Positions" {
			continue
		}
		if !strings.Contains(f.Value, "BTCUSDT") || !strings.Contains(f.Value, "55000") {
			t.Errorf("positions field = %q, want live BTCUSDT line", f.Value)
		}
		if strings.Contains(f.Value, "SOLUSDT") {
			t.Errorf("positions field = %q, flat SOLUSDT must be hidden", f.Value)
		}
		return
	}
	t.Error("account positions field missing")
}

func TestNotifyTpSlRendersAccountPositions(t *testing.T) {
	srv, posts := newWebhookServer(t)
	d := newTestDiscord(t, srv)

	err := d.Notify(context.Background(), schema.Notification{
		Kind: schema.KindTpSlChanged,
		TpSl: &schema.TpSlChange{Symbol: "BTCUSDT", Side: "Buy", TakeProfit: "56000"},
		Positions: map[string]schema.Position{
			"BTCUSDT": {Symbol: "BTCUSDT", Side: "Buy", Size: "0.5", EntryPrice: "50000"},
		},
		At: time.Now(),
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	e := posts()[0].payload.Embeds[0]
	last := e.Fields[len(e.Fields)-1]
	if last.Name != "Account Positions" || !strings.Contains(last.Value, "BTCUSDT") {
		t.Errorf("last field = %+v, want account positions", last)
	}
}

func TestNotifyDailyReportGoesToPnlWebhook(t *testing.T) {
	srv, posts := newWebhookServer(t)
	d := newTestDiscord(t, srv)

	err := d.Notify(context.Background(), schema.Notification{
		Kind: schema.KindDailyReport,
		Report: &schema.DailyReport{
			Date:     time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			Trades:   3,
			Wins:     2,
			Losses:   1,
			TotalPnl: decimal.NewFromInt(75),
			MaxWin:   decimal.NewFromInt(100),
			MaxLoss:  decimal.NewFromInt(-25),
			Equity:   "10500.25",
		},
		At: time.Now(),
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	got := posts()
	if len(got) != 1 {
		t.Fatalf("posts = %d, want 1", len(got))
	}
	if got[0].path != "/pnl" {
		t.Errorf("path = %q, want /pnl", got[0].path)
	}
	e := got[0].payload.Embeds[0]
	if e.Color != colorGreen {
		t.Errorf("color = %#x, want green for a profitable day", e.Color)
	}
	if !strings.Contains(e.Title, "2025-03-10") {
		t.Errorf("title = %q, want date", e.Title)
	}
	if e.Footer == nil || !strings.Contains(e.Footer.Text, "10500.25") {
		t.Errorf("footer = %+v, want equity", e.Footer)
	}
}

func TestNotifyRejectedWebhook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	d, err := NewDiscord(config.DiscordConfig{WebhookURL: srv.URL}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewDiscord: %v", err)
	}

	err = d.Notify(context.Background(), schema.Notification{
		Kind:  schema.KindNewOrder,
		Order: &schema.OrderEvent{Symbol: "BTCUSDT"},
		At:    time.Now(),
	})
	if err == nil {
		t.Fatal("expected error for rejected webhook")
	}
}
