package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"golang.org/x/sync/errgroup"

	"github.com/bountyboard/backend/internal/auth"
	"github.com/bountyboard/backend/internal/bounty"
	"github.com/bountyboard/backend/internal/cache"
	"github.com/bountyboard/backend/internal/cache/natskv"
	"github.com/bountyboard/backend/internal/cache/ristretto"
	"github.com/bountyboard/backend/internal/config"
	"github.com/bountyboard/backend/internal/events"
	"github.com/bountyboard/backend/internal/httpx"
	"github.com/bountyboard/backend/internal/logger"
	"github.com/bountyboard/backend/internal/models"
	"github.com/bountyboard/backend/internal/registry"
	"github.com/bountyboard/backend/internal/router"
	"github.com/bountyboard/backend/internal/store"
	"github.com/bountyboard/backend/internal/store/memory"
	"github.com/bountyboard/backend/internal/store/postgres"
	"github.com/bountyboard/backend/internal/telemetry"
	"github.com/bountyboard/backend/internal/token"
)

func main() {
	if err := run(); err != nil {
		slog.Error("bountyboard exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Logging.Service, log)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// Broker
	var pub events.Publisher = events.LogPublisher{Log: log}
	var js jetstream.JetStream
	if cfg.NATS.URL != "" {
		var nc *nats.Conn
		nc, js, err = events.Connect(ctx, cfg.NATS, log)
		if err != nil {
			return err
		}
		defer func() { _ = nc.Drain() }()
		pub = events.NewJetStreamPublisher(js, cfg.NATS.SubjectPrefix)
	} else {
		log.Info("nats not configured: ledger events go to the log")
	}

	// Store, plus the River outbox when it is Postgres
	var (
		st          store.Store
		riverClient *river.Client[pgx.Tx]
	)
	switch cfg.Store.Driver {
	case "memory":
		log.Warn("using in-memory store: state is lost on exit")
		st = memory.New(events.CommitHook(pub, metrics, log))
	default:
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		log.Info("connected to postgres")

		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return err
		}
		migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
		if err != nil {
			return fmt.Errorf("river migrator: %w", err)
		}
		if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
			return fmt.Errorf("river migrate: %w", err)
		}
		log.Info("migrations applied")

		pgStore, client, err := newOutboxStore(pool, pub, metrics, cfg.Worker, log)
		if err != nil {
			return err
		}
		st, riverClient = pgStore, client
	}

	// Idempotency cache
	var idem cache.Cache
	switch cfg.Cache.Backend {
	case "nats":
		c, err := natskv.Open(ctx, js, cfg.NATS.IdempotencyKV, cfg.Cache.IdempotencyTTL)
		if err != nil {
			return err
		}
		idem = c
	default:
		c, err := ristretto.New(cfg.Cache.MaxCostBytes, ristretto.WithNamespace("idem"), ristretto.WithMetrics(metrics))
		if err != nil {
			return fmt.Errorf("idempotency cache: %w", err)
		}
		defer c.Close()
		idem = c
	}

	// Services
	validator, err := httpx.NewValidator()
	if err != nil {
		return fmt.Errorf("schemas: %w", err)
	}
	signer := token.NewSigner([]byte(cfg.Ledger.ProgramSecret))
	tokens := token.NewService(cfg.Ledger.SettlementAsset, signer)
	authSvc := auth.NewService(st, cfg.Auth)
	agents := registry.NewService(st, registry.WithLogger(log), registry.WithMetrics(metrics))
	ledger := bounty.NewService(st, tokens, registry.NewSettler(bounty.ProgramID), signer,
		bounty.WithLogger(log), bounty.WithMetrics(metrics))
	if cfg.Ledger.FaucetEnabled {
		log.Warn("development faucet enabled", "per_request", cfg.Ledger.FaucetMax, "per_day", cfg.Ledger.FaucetDailyMax)
	}

	handler := router.New(cfg, router.Deps{
		Auth:     auth.NewHandler(authSvc, validator, log),
		Tokens:   authSvc,
		Agents:   registry.NewHandler(agents, validator, log),
		Bounties: bounty.NewHandler(ledger, validator, log),
		Wallet:   token.NewHandler(tokens, st, validator, log, token.WithFaucetDailyCap(cfg.Ledger.FaucetDailyMax)),
		Cache:    idem,
		Health:   st.Ping,
		Log:      log,
	})

	srv := &http.Server{
		Addr:         net.JoinHostPort("0.0.0.0", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	if riverClient != nil {
		g.Go(func() error {
			if err := riverClient.Start(gctx); err != nil {
				return fmt.Errorf("river: %w", err)
			}
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return riverClient.Stop(stopCtx)
		})
	}
	g.Go(func() error {
		log.Info("starting HTTP server", "addr", srv.Addr, "store", cfg.Store.Driver, "cache", cfg.Cache.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newOutboxStore builds the Postgres store whose appended events are
// enqueued as River jobs in the same transaction. The insert func is set
// after the River client exists, since the client needs the workers first.
func newOutboxStore(pool *pgxpool.Pool, pub events.Publisher, metrics *telemetry.Metrics, cfg config.Worker, log *slog.Logger) (*postgres.Store, *river.Client[pgx.Tx], error) {
	var insertMu sync.Mutex
	var insertFn func(ctx context.Context, tx pgx.Tx, args events.LedgerEventArgs) error
	sink := func(ctx context.Context, tx pgx.Tx, e models.Event) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			return errors.New("event outbox not wired")
		}
		return fn(ctx, tx, events.LedgerEventArgs{Event: e})
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, events.NewWorker(pub, metrics, log))
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.MaxWorkers},
		},
		Workers: workers,
		Logger:  log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("river client: %w", err)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args events.LedgerEventArgs) error {
		_, err := client.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	return postgres.New(pool, postgres.WithEventSink(sink)), client, nil
}
