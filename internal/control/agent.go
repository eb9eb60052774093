// Package control wires the agent together: storage backend selection,
// schema migration, the event bus, the registry workflow, the recovery
// subsystem and the admin HTTP server.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/openwallet-foundation/agent-recovery/internal/admin"
	"github.com/openwallet-foundation/agent-recovery/internal/bus"
	"github.com/openwallet-foundation/agent-recovery/internal/core/config"
	infraredis "github.com/openwallet-foundation/agent-recovery/internal/infra/redis"
	"github.com/openwallet-foundation/agent-recovery/internal/infra/storage"
	"github.com/openwallet-foundation/agent-recovery/internal/infra/storage/memory"
	"github.com/openwallet-foundation/agent-recovery/internal/infra/storage/postgres"
	"github.com/openwallet-foundation/agent-recovery/internal/recovery"
	"github.com/openwallet-foundation/agent-recovery/internal/revocation"
	"github.com/openwallet-foundation/agent-recovery/migrations"
)

// Agent is the running process: one storage backend, one bus, one admin
// server.
type Agent struct {
	cfg      *config.AppConfig
	log      *slog.Logger
	server   *admin.Server
	provider storage.Provider
	redis    *infraredis.Client
	// redisIsProvider marks that provider.Close already closes the Redis
	// connection.
	redisIsProvider bool
}

// NewAgent builds the agent from configuration. Backend selection:
// PostgreSQL when a database URL is configured, Redis when only a Redis
// URL is, in-memory otherwise.
func NewAgent(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*Agent, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &Agent{cfg: cfg, log: log}

	checkers := map[string]admin.HealthChecker{}
	var lease recovery.Lease

	switch {
	case cfg.Database.URL != "":
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := migrate(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		a.provider = postgres.NewProvider(db)
		checkers["database"] = db
		log.Info("using postgres storage backend")
	case cfg.Redis.URL != "":
		client, err := infraredis.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = client
		a.redisIsProvider = true
		a.provider = client
		checkers["redis"] = client
		log.Info("using redis storage backend")
	default:
		a.provider = memory.NewProvider()
		log.Warn("no database or redis configured, using in-memory storage")
	}

	// A Redis connection, whether or not it is the storage backend, gives
	// concurrent replicas an advisory recovery lease.
	if a.redis == nil && cfg.Redis.URL != "" {
		client, err := infraredis.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = client
		checkers["redis"] = client
	}
	if a.redis != nil {
		lease = infraredis.NewLease(a.redis)
	}

	policy := cfg.Recovery.Policy()
	local := bus.NewLocal(log)

	wallet := revocation.NewWalletStore(a.provider)
	registrar := revocation.NewRegistrar(a.provider, local, revocation.NewMemoryLedger(), wallet, policy, log)
	registrar.Register(local)

	manager := recovery.NewManager(a.provider, policy, local, revocation.Routes(), log)

	resolver := admin.NewHeaderResolver(cfg.Recovery.Enabled, cfg.Recovery.DisabledTenants)
	coordinator := recovery.NewCoordinator(manager, resolver, recovery.CoordinatorOptions{
		SkipPathPrefixes: cfg.Recovery.SkipPaths,
		AttemptTimeout:   cfg.Recovery.AttemptTimeout(),
		Lease:            lease,
	}, log)

	cleanupMaxAge := time.Duration(cfg.Recovery.CleanupMaxAgeHours) * time.Hour
	a.server = admin.NewServer(cfg.Server.Port, manager, registrar, coordinator, checkers, cleanupMaxAge, log)
	return a, nil
}

func migrate(db *postgres.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db.DB.DB, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Start serves HTTP until Stop is called.
func (a *Agent) Start() error {
	return a.server.Start()
}

// Stop shuts the server down gracefully and closes backend connections.
func (a *Agent) Stop(ctx context.Context) error {
	err := a.server.Stop(ctx)
	if a.provider != nil {
		if cerr := a.provider.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if a.redis != nil && !a.redisIsProvider {
		if cerr := a.redis.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
