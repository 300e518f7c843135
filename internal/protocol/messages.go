// Package protocol defines the JSON message surface between observers and
// the control plane over an established connection.
package protocol

import (
	"encoding/json"
	"time"
)

// Message types from client to server
const (
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypePing         = "ping"
	TypeAgentCommand = "agent_command"
)

// Message types from server to client
const (
	TypeConnected    = "connected"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypePong         = "pong"
	TypeStateSync    = "state_sync"
	TypeCommand      = "command"
	TypeError        = "error"
)

// ControlMessage is the inbound message shape. Fields beyond Type are
// populated per type: Channel for (un)subscribe, AgentID/Command for
// agent_command.
type ControlMessage struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	AgentID string          `json:"agent_id,omitempty"`
	Command json.RawMessage `json:"command,omitempty"`
}

// Event builds an outbound envelope: a flat object carrying a type
// discriminator and a timestamp, plus event-specific fields. The core never
// interprets the extra fields, it only routes them.
func Event(typ string, fields map[string]any) map[string]any {
	env := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		env[k] = v
	}
	env["type"] = typ
	env["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return env
}

// ErrorEvent is the envelope sent back on a malformed or unknown message.
func ErrorEvent(message string) map[string]any {
	return Event(TypeError, map[string]any{"error": message})
}
