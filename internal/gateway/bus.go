package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/joshuahaertel/friendexing/internal/events"
	"github.com/joshuahaertel/friendexing/internal/metrics"
)

// Bus carries state-machine broadcasts to the connection manager. LocalBus
// delivers in process; NATSBus bridges instances sharing one session store.
// Both preserve per-game ordering.
type Bus interface {
	ToGame(gameID string, event events.Event)
	ToAdmin(gameID string, event events.Event)
	Close() error
}

// LocalBus fans events straight into this process's connection manager.
type LocalBus struct {
	manager *ConnectionManager
}

// NewLocalBus creates an in-process bus.
func NewLocalBus(manager *ConnectionManager) *LocalBus {
	return &LocalBus{manager: manager}
}

func (b *LocalBus) ToGame(gameID string, event events.Event) {
	b.publish(gameID, event)
}

func (b *LocalBus) ToAdmin(gameID string, event events.Event) {
	b.publish(adminGroup(gameID), event)
}

func (b *LocalBus) publish(groupID string, event events.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("group_id", groupID).Msg("failed to marshal event")
		return
	}
	metrics.EventsBroadcast.WithLabelValues(string(event.EventType())).Inc()
	b.manager.Broadcast(groupID, payload)
}

func (b *LocalBus) Close() error { return nil }

// busEnvelope is the wire shape NATSBus publishes: the target group plus the
// already-marshaled event, so consumers fan out bytes without re-encoding.
type busEnvelope struct {
	GroupID string          `json:"group_id"`
	Payload json.RawMessage `json:"payload"`
}

// NATSBus publishes game events to core NATS subjects and mirrors every
// instance's events into the local connection manager via a subscription.
// Core pub/sub is enough here: groups are ephemeral and a missed event is
// superseded by the next snapshot or broadcast.
type NATSBus struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	manager *ConnectionManager
}

// NATSConfig holds connection settings for the event bus.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// NewNATSBus connects to NATS and subscribes to the game event subjects.
func NewNATSBus(cfg NATSConfig, manager *ConnectionManager) (*NATSBus, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	bus := &NATSBus{nc: nc, manager: manager}
	sub, err := nc.Subscribe("game.events.>", bus.onMessage)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe to game events: %w", err)
	}
	bus.sub = sub
	return bus, nil
}

func (b *NATSBus) ToGame(gameID string, event events.Event) {
	b.publish(gameID, gameID, event)
}

func (b *NATSBus) ToAdmin(gameID string, event events.Event) {
	b.publish(gameID, adminGroup(gameID), event)
}

func (b *NATSBus) publish(gameID, groupID string, event events.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("group_id", groupID).Msg("failed to marshal event")
		return
	}
	envelope, err := json.Marshal(busEnvelope{GroupID: groupID, Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("group_id", groupID).Msg("failed to marshal envelope")
		return
	}
	metrics.EventsBroadcast.WithLabelValues(string(event.EventType())).Inc()
	if err := b.nc.Publish("game.events."+gameID, envelope); err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("failed to publish event")
	}
}

func (b *NATSBus) onMessage(msg *nats.Msg) {
	var envelope busEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("malformed bus envelope")
		return
	}
	b.manager.Broadcast(envelope.GroupID, envelope.Payload)
}

func (b *NATSBus) Close() error {
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			log.Error().Err(err).Msg("failed to unsubscribe from game events")
		}
	}
	b.nc.Close()
	return nil
}
