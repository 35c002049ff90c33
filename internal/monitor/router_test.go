package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/quantrail/sentinel/internal/schema"
)

func TestHandleFrameMalformedDropped(t *testing.T) {
	m, notifier := newTestMonitor(t, &stubExchange{})

	if err := m.handleFrame(context.Background(), nil, []byte("{not json")); err != nil {
		t.Fatalf("malformed frame should not error: %v", err)
	}
	expectNoNotification(t, notifier.ch, 50*time.Millisecond)
}

func TestHandleFrameOrderDispatch(t *testing.T) {
	m, notifier := newTestMonitor(t, &stubExchange{})

	frame := []byte(`{"topic":"order","data":[{"orderId":"ord-1","symbol":"BTCUSDT","side":"Buy","orderStatus":"New","price":"50000","qty":"0.5"}]}`)
	if err := m.handleFrame(context.Background(), nil, frame); err != nil {
		t.Fatalf("handleFrame: %v", err)
	}

	n := waitNotification(t, notifier.ch, schema.KindNewOrder)
	if n.Order.OrderID != "ord-1" {
		t.Errorf("order id = %q, want ord-1", n.Order.OrderID)
	}
}

func TestHandleFrameExecutionDispatch(t *testing.T) {
	m, notifier := newTestMonitor(t, &stubExchange{})

	frame := []byte(`{"topic":"execution","data":[{"orderId":"ord-1","symbol":"BTCUSDT","side":"Buy","execType":"Trade","execQty":"1","execPrice":"50000"}]}`)
	if err := m.handleFrame(context.Background(), nil, frame); err != nil {
		t.Fatalf("handleFrame: %v", err)
	}
	waitNotification(t, notifier.ch, schema.KindAggregatedFill)
}

func TestHandleFramePositionDispatch(t *testing.T) {
	m, notifier := newTestMonitor(t, &stubExchange{})

	frame := []byte(`{"topic":"position","data":[{"symbol":"BTCUSDT","side":"Buy","size":"0.5","avgPrice":"50000"}]}`)
	if err := m.handleFrame(context.Background(), nil, frame); err != nil {
		t.Fatalf("handleFrame: %v", err)
	}
	waitNotification(t, notifier.ch, schema.KindPositionSnapshot)
}

func TestHandleFrameBadPayloadDropped(t *testing.T) {
	m, notifier := newTestMonitor(t, &stubExchange{})

	frame := []byte(`{"topic":"order","data":{"not":"an array"}}`)
	if err := m.handleFrame(context.Background(), nil, frame); err != nil {
		t.Fatalf("bad payload should not error: %v", err)
	}
	expectNoNotification(t, notifier.ch, 50*time.Millisecond)
}

func TestHandleFrameUnknownTopicIgnored(t *testing.T) {
	m, notifier := newTestMonitor(t, &stubExchange{})

	frame := []byte(`{"topic":"wallet","data":[{}]}`)
	if err := m.handleFrame(context.Background(), nil, frame); err != nil {
		t.Fatalf("unknown topic should not error: %v", err)
	}
	expectNoNotification(t, notifier.ch, 50*time.Millisecond)
}

func TestHandleFrameAuthRejection(t *testing.T) {
	m, _ := newTestMonitor(t, &stubExchange{})

	frame := []byte(`{"op":"auth","success":false,"ret_msg":"invalid signature"}`)
	if err := m.handleFrame(context.Background(), nil, frame); err == nil {
		t.Fatal("rejected auth must force a reconnect")
	}
}

func TestHandleFrameSubscribeAck(t *testing.T) {
	m, _ := newTestMonitor(t, &stubExchange{})

	for _, raw := range []string{
		`{"op":"subscribe","success":true}`,
		`{"op":"subscribe","success":false,"ret_msg":"bad topic"}`,
		`{"op":"pong","success":true}`,
	} {
		if err := m.handleFrame(context.Background(), nil, []byte(raw)); err != nil {
			t.Errorf("control frame %s errored: %v", raw, err)
		}
	}
}

func TestPrefetchSeedsCaches(t *testing.T) {
	exchange := &stubExchange{
		positions: []schema.PositionEvent{
			openPosition("BTCUSDT", "0.5", "50000", "55000", "48000"),
			openPosition("XRPUSDT", "0", "", "", ""), // flat, skipped
		},
		orders: []schema.OrderEvent{
			{OrderID: "ord-1", Symbol: "BTCUSDT", Status: statusPtr(schema.StatusNew)},
			{OrderID: "stop-1", Symbol: "BTCUSDT", Status: statusPtr(schema.StatusUntriggered), StopOrderType: schema.StopTypeTakeProfit},
		},
	}
	m, notifier := newTestMonitor(t, exchange)

	m.prefetch(context.Background())

	m.state.mu.Lock()
	_, hasPos := m.state.positions["BTCUSDT"]
	_, hasFlat := m.state.positions["XRPUSDT"]
	baseline := m.state.baselines["BTCUSDT"]
	_, ord1 := m.state.activeOrders["ord-1"]
	stopType := m.state.stopTypes["stop-1"]
	m.state.mu.Unlock()

	if !hasPos {
		t.Error("open position not seeded")
	}
	if hasFlat {
		t.Error("flat position should be skipped")
	}
	if baseline.tp != "55000" || baseline.sl != "48000" {
		t.Errorf("baseline = %+v", baseline)
	}
	if !ord1 {
		t.Error("open order not seeded")
	}
	if stopType != schema.StopTypeTakeProfit {
		t.Errorf("stop type = %q, want TakeProfit", stopType)
	}

	// Prefetched positions must not replay alerts or snapshots.
	expectNoNotification(t, notifier.ch, 50*time.Millisecond)

	// A pre-existing order seen again on the stream is a modification.
	m.handleOrder(context.Background(), schema.OrderEvent{
		OrderID: "ord-1", Symbol: "BTCUSDT", Status: statusPtr(schema.StatusNew),
	})
	waitNotification(t, notifier.ch, schema.KindModifiedOrder)
}
