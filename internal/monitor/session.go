package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	json "github.com/goccy/go-json"

	"github.com/quantrail/sentinel/internal/bybit"
	"github.com/quantrail/sentinel/internal/schema"
)

const (
	authExpiryWindow    = 10 * time.Second
	controlWriteTimeout = 5 * time.Second
	sessionReadLimit    = 2 * 1024 * 1024
)

// Run prefetches initial state once, then keeps a private-feed session alive
// until the context terminates, reconnecting after a fixed delay on any
// failure. Auth rejection tears the session down like any transport error.
func (m *Monitor) Run(ctx context.Context) error {
	m.prefetch(ctx)

	delay := backoff.NewConstantBackOff(m.cfg.ReconnectDelay)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := m.runSession(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.metrics.recordReconnect(ctx, "error")
			m.logger.Printf("session ended: %v", err)
		}

		m.timers.StopAll()
		m.flushAllFills()

		sleep := delay.NextBackOff()
		if sleep == backoff.Stop {
			sleep = m.cfg.ReconnectDelay
		}
		m.logger.Printf("reconnecting in %v", sleep)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		}
	}
}

// prefetch warms the durable caches from REST before the first connect so
// pre-existing positions and orders are not misclassified as new once the
// stream starts. Failures are logged; the engine proceeds with empty caches.
func (m *Monitor) prefetch(ctx context.Context) {
	positions, err := m.exchange.OpenPositions(ctx, m.category)
	if err != nil {
		m.logger.Printf("prefetch positions: %v", err)
	} else {
		now := m.now()
		loaded := 0
		m.state.mu.Lock()
		for _, ev := range positions {
			var pos schema.Position
			pos.Merge(ev)
			if pos.Flat() {
				continue
			}
			m.state.positions[pos.Symbol] = pos
			m.state.baselines[pos.Symbol] = tpslBaseline{tp: pos.TakeProfit, sl: pos.StopLoss}
			m.state.lastSnapshot[pos.Symbol] = now
			loaded++
		}
		m.state.mu.Unlock()
		m.logger.Printf("prefetch: %d open positions loaded", loaded)
	}

	orders, err := m.exchange.OpenOrders(ctx, m.category)
	if err != nil {
		m.logger.Printf("prefetch orders: %v", err)
		return
	}
	m.state.mu.Lock()
	for _, order := range orders {
		if order.OrderID == "" {
			continue
		}
		m.state.activeOrders[order.OrderID] = struct{}{}
		if order.StopOrderType.Conditional() {
			m.state.stopTypes[order.OrderID] = order.StopOrderType
		}
	}
	count := len(m.state.activeOrders)
	m.state.mu.Unlock()
	m.logger.Printf("prefetch: %d open orders loaded", count)
}

// runSession drives one physical connection: dial, auth handshake, then
// isolated read and heartbeat loops that can cancel one another.
func (m *Monitor) runSession(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, m.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", m.wsURL, err)
	}
	conn.SetReadLimit(sessionReadLimit)
	m.metrics.recordReconnect(ctx, "success")

	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()

	defer func() {
		m.connMu.Lock()
		if m.conn == conn {
			m.conn = nil
		}
		m.connMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	if err := m.sendAuth(ctx, conn); err != nil {
		return fmt.Errorf("auth handshake: %w", err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		errCh <- m.readLoop(connCtx, conn)
	}()

	go func() {
		defer wg.Done()
		errCh <- m.heartbeatLoop(connCtx, conn)
	}()

	first := <-errCh
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "")
	wg.Wait()
	close(errCh)

	for e := range errCh {
		if first == nil || errors.Is(first, context.Canceled) {
			first = e
		}
	}
	return first
}

// sendAuth writes the signed handshake. Subscription is deferred until the
// auth acknowledgment arrives on the read path.
func (m *Monitor) sendAuth(ctx context.Context, conn *websocket.Conn) error {
	expires := m.now().Add(authExpiryWindow).UnixMilli()
	signature := bybit.WsAuthSignature(m.apiSecret, expires)
	req := schema.AuthRequest{
		Op:   "auth",
		Args: []any{m.apiKey, expires, signature},
	}
	return writeControl(ctx, conn, req)
}

func (m *Monitor) subscribe(ctx context.Context, conn *websocket.Conn) error {
	req := schema.SubscribeRequest{Op: "subscribe", Args: schema.PrivateTopics()}
	m.logger.Printf("subscribing to topics: %v", req.Args)
	return writeControl(ctx, conn, req)
}

// heartbeatLoop sends the application-level ping at a fixed interval while
// the socket is alive.
func (m *Monitor) heartbeatLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case <-ticker.C:
			if err := writeControl(ctx, conn, schema.PingRequest{Op: "ping"}); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
					return context.Canceled
				}
				return fmt.Errorf("heartbeat: %w", err)
			}
		}
	}
}

// readLoop consumes frames until the connection dies. Frame handling never
// returns an error except for auth rejection, which forces a reconnect.
func (m *Monitor) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return context.Canceled
			}
			if errors.Is(err, net.ErrClosed) {
				return context.Canceled
			}
			if status := websocket.CloseStatus(err); status != -1 {
				if status == websocket.StatusNormalClosure {
					return context.Canceled
				}
				return fmt.Errorf("read: remote closed with status %d", status)
			}
			return fmt.Errorf("read: %w", err)
		}
		if msgType != websocket.MessageText {
			continue
		}
		if err := m.handleFrame(ctx, conn, data); err != nil {
			return err
		}
	}
}

func writeControl(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal control frame: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, controlWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
