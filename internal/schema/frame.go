// Package schema defines the wire types of the Bybit v5 private feed and the
// canonical notification payloads Sentinel emits.
package schema

import (
	json "github.com/goccy/go-json"
)

// Topic names a private stream subscription.
type Topic string

const (
	// TopicOrder carries order lifecycle updates.
	TopicOrder Topic = "order"
	// TopicExecution carries fill notifications.
	TopicExecution Topic = "execution"
	// TopicPosition carries position snapshots and deltas.
	TopicPosition Topic = "position"
)

// PrivateTopics is the fixed subscription set for the private feed.
func PrivateTopics() []string {
	return []string{string(TopicOrder), string(TopicExecution), string(TopicPosition)}
}

// Frame is the envelope of every inbound private-feed message. Control
// acknowledgments carry Op/Success; data frames carry Topic/Data.
type Frame struct {
	Op      string          `json:"op"`
	Success bool            `json:"success"`
	RetMsg  string          `json:"ret_msg"`
	ConnID  string          `json:"conn_id"`
	Topic   Topic           `json:"topic"`
	Data    json.RawMessage `json:"data"`
}

// IsControl reports whether the frame is an auth/subscribe/pong acknowledgment
// rather than a data frame.
func (f Frame) IsControl() bool {
	return f.Topic == ""
}

// AuthRequest is the signed handshake sent immediately after dialing.
// Args are [apiKey, expiresAtMs, hexSignature].
type AuthRequest struct {
	Op   string `json:"op"`
	Args []any  `json:"args"`
}

// SubscribeRequest subscribes the session to one or more topics.
type SubscribeRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// PingRequest is the application-level heartbeat.
type PingRequest struct {
	Op string `json:"op"`
}
