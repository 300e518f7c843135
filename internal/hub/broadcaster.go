package hub

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

// Broadcaster fans messages out to connections tracked by a Registry.
// Delivery is best-effort and at-most-once per connection per call; a
// connection whose send fails is disconnected on the spot. Messages to the
// same connection keep the order the calls were made in.
type Broadcaster struct {
	registry *Registry
	log      zerolog.Logger
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(registry *Registry, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		log:      log.With().Str("component", "broadcaster").Logger(),
	}
}

// Broadcast sends a message to every connection subscribed to the channel
// at call time. Subscribers joining afterwards never see it. The call
// always succeeds from the caller's point of view; per-connection failures
// only disconnect that connection.
func (b *Broadcaster) Broadcast(channel string, message any) {
	data, err := json.Marshal(message)
	if err != nil {
		b.log.Error().Err(err).Str("channel", channel).Msg("broadcast marshal failed")
		return
	}
	for _, t := range b.registry.subscriberTargets(channel) {
		b.deliver(t, data)
	}
}

// SendToAgent sends a message to every connection routed to the agent.
// It reports whether at least one routed connection existed, so the caller
// can surface "agent not reachable".
func (b *Broadcaster) SendToAgent(agentID string, message any) bool {
	targets := b.registry.agentTargets(agentID)
	if len(targets) == 0 {
		return false
	}
	data, err := json.Marshal(message)
	if err != nil {
		b.log.Error().Err(err).Str("agent_id", agentID).Msg("agent send marshal failed")
		return false
	}
	for _, t := range targets {
		b.deliver(t, data)
	}
	return true
}

// SendToConnection sends a message directly to one connection. On failure
// the connection is disconnected and the error returned to the caller.
func (b *Broadcaster) SendToConnection(connID string, message any) error {
	t, ok := b.registry.connectionTarget(connID)
	if !ok {
		return ErrUnknownConnection
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	if err := t.sender.Send(data); err != nil {
		b.log.Warn().Err(err).Str("conn_id", connID).Msg("send failed, disconnecting")
		b.registry.Disconnect(connID)
		return err
	}
	return nil
}

func (b *Broadcaster) deliver(t target, data []byte) {
	if err := t.sender.Send(data); err != nil {
		b.log.Warn().Err(err).Str("conn_id", t.id).Msg("send failed, disconnecting")
		b.registry.Disconnect(t.id)
	}
}
