package monitor

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"

	"github.com/quantrail/sentinel/internal/schema"
)

// handleFrame routes one raw frame. Malformed payloads are logged and dropped
// so a single bad message never costs the connection; only a rejected auth
// acknowledgment propagates as an error.
func (m *Monitor) handleFrame(ctx context.Context, conn *websocket.Conn, data []byte) error {
	var frame schema.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		m.metrics.recordMalformed(ctx)
		m.logger.Printf("dropping malformed frame: %v", err)
		return nil
	}

	if frame.IsControl() {
		return m.handleControl(ctx, conn, frame)
	}

	m.metrics.recordFrame(ctx, frame.Topic)
	switch frame.Topic {
	case schema.TopicOrder:
		var events []schema.OrderEvent
		if err := json.Unmarshal(frame.Data, &events); err != nil {
			m.metrics.recordMalformed(ctx)
			m.logger.Printf("dropping malformed order payload: %v", err)
			return nil
		}
		for _, ev := range events {
			m.handleOrder(ctx, ev)
		}
	case schema.TopicExecution:
		var events []schema.ExecutionEvent
		if err := json.Unmarshal(frame.Data, &events); err != nil {
			m.metrics.recordMalformed(ctx)
			m.logger.Printf("dropping malformed execution payload: %v", err)
			return nil
		}
		for _, ev := range events {
			m.handleExecution(ctx, ev)
		}
	case schema.TopicPosition:
		var events []schema.PositionEvent
		if err := json.Unmarshal(frame.Data, &events); err != nil {
			m.metrics.recordMalformed(ctx)
			m.logger.Printf("dropping malformed position payload: %v", err)
			return nil
		}
		for _, ev := range events {
			m.handlePosition(ctx, ev)
		}
	default:
		m.logger.Printf("ignoring frame for unknown topic %q", frame.Topic)
	}
	return nil
}

func (m *Monitor) handleControl(ctx context.Context, conn *websocket.Conn, frame schema.Frame) error {
	switch frame.Op {
	case "auth":
		if !frame.Success {
			return fmt.Errorf("auth rejected: %s", frame.RetMsg)
		}
		m.logger.Printf("authenticated (conn %s)", frame.ConnID)
		m.state.resetSession()
		return m.subscribe(ctx, conn)
	case "subscribe":
		if !frame.Success {
			m.logger.Printf("subscribe rejected: %s", frame.RetMsg)
			return nil
		}
		m.logger.Printf("subscription confirmed")
	case "pong", "ping":
		// Heartbeat acknowledgment; nothing to do.
	default:
		m.logger.Printf("ignoring control frame op=%q", frame.Op)
	}
	return nil
}
