package gateway

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Service wires the connection manager, event bus, inbound router and
// websocket handlers into one fan-out layer. Construction is two-phase: the
// bus exists first so the state machine can be built around it, then the
// state machine is attached as the inbound handler.
type Service struct {
	manager   *ConnectionManager
	bus       Bus
	clock     clockwork.Clock
	wsHandler *WebSocketHandler
}

// Config holds fan-out layer configuration.
type Config struct {
	Connection ConnectionConfig
	// NATSURL enables the cross-instance bus when non-empty; otherwise
	// events stay in process.
	NATSURL string
}

// DefaultConfig returns the default gateway configuration.
func DefaultConfig() Config {
	return Config{Connection: DefaultConnectionConfig()}
}

// NewService creates the fan-out layer. Attach must be called with the game
// handler before any connection is accepted.
func NewService(config Config, clock clockwork.Clock) (*Service, error) {
	manager := NewConnectionManager(config.Connection)

	var bus Bus
	if config.NATSURL != "" {
		natsBus, err := NewNATSBus(NATSConfig{URL: config.NATSURL}, manager)
		if err != nil {
			return nil, err
		}
		bus = natsBus
		log.Info().Str("nats_url", config.NATSURL).Msg("gateway using NATS event bus")
	} else {
		bus = NewLocalBus(manager)
	}

	return &Service{manager: manager, bus: bus, clock: clock}, nil
}

// Attach wires the game state machine in as the inbound handler.
func (s *Service) Attach(handler GameHandler) {
	s.manager.SetRouter(NewGameRouter(handler, s.clock))
	s.wsHandler = NewWebSocketHandler(s.manager, handler)
}

// Bus exposes the broadcaster for the state machine to publish through.
func (s *Service) Bus() Bus {
	return s.bus
}

// Start runs the broadcast dispatch loop until the context is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.manager.Start(ctx)
	if err := s.bus.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close event bus")
	}
}

// RegisterRoutes registers the websocket endpoints.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/play", s.wsHandler.HandlePlay)
	mux.HandleFunc("/ws/admin", s.wsHandler.HandleAdmin)
}
