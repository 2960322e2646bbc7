package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/joshuahaertel/friendexing/internal/game"
	"github.com/joshuahaertel/friendexing/internal/gateway"
	"github.com/joshuahaertel/friendexing/internal/imagery"
	"github.com/joshuahaertel/friendexing/internal/store"
)

// Services holds every long-lived component of the process.
type Services struct {
	Redis   *redis.Client
	Store   *store.Store
	Game    *game.App
	Gateway *gateway.Service
	Worker  *imagery.Worker
}

// setupServices wires the whole dependency graph: session store, fan-out
// gateway, image acquisition worker and the game state machine in the
// middle.
func setupServices(ctx context.Context, config Config) (*Services, error) {
	rdb, err := store.Connect(ctx, config.Store)
	if err != nil {
		return nil, fmt.Errorf("connect session store: %w", err)
	}
	sessionStore := store.NewStore(rdb)

	clock := clockwork.NewRealClock()
	gatewaySvc, err := gateway.NewService(gateway.Config{
		Connection: gateway.DefaultConnectionConfig(),
		NATSURL:    config.NATSURL,
	}, clock)
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("create gateway: %w", err)
	}

	credentials, err := loadCredentials()
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("load upstream credentials: %w", err)
	}
	client, err := imagery.NewClient(config.Imagery, credentials)
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("create indexing client: %w", err)
	}
	worker := imagery.NewWorker(client, config.ImageQueueSize)

	gameApp := game.NewApp(sessionStore, gatewaySvc.Bus(), worker, clock)
	gatewaySvc.Attach(gameApp)

	return &Services{
		Redis:   rdb,
		Store:   sessionStore,
		Game:    gameApp,
		Gateway: gatewaySvc,
		Worker:  worker,
	}, nil
}
