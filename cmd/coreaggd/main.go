// Command coreaggd runs the indexer aggregation backend as a headless daemon:
// it refreshes Cardigann definitions, probes indexer health, and serves the
// aggregated search API until it receives SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreagg/indexercore/internal/api"
	"github.com/coreagg/indexercore/internal/config"
	"github.com/coreagg/indexercore/internal/database"
	"github.com/coreagg/indexercore/internal/database/queries"
	"github.com/coreagg/indexercore/internal/health"
	"github.com/coreagg/indexercore/internal/indexer/cardigann"
	"github.com/coreagg/indexercore/internal/indexer/ratelimit"
	"github.com/coreagg/indexercore/internal/indexer/registry"
	"github.com/coreagg/indexercore/internal/indexer/search"
	"github.com/coreagg/indexercore/internal/indexer/session"
	"github.com/coreagg/indexercore/internal/indexer/solver"
	"github.com/coreagg/indexercore/internal/logger"
	"github.com/coreagg/indexercore/internal/metadata"
	"github.com/coreagg/indexercore/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(&logger.Config{
		Level:           cfg.Logging.Level,
		Format:          cfg.Logging.Format,
		Path:            cfg.Logging.Path,
		MaxSizeMB:       cfg.Logging.MaxSizeMB,
		MaxBackups:      cfg.Logging.MaxBackups,
		MaxAgeDays:      cfg.Logging.MaxAgeDays,
		Compress:        cfg.Logging.Compress,
		EnableStreaming: cfg.Logging.EnableWebSocket,
		BufferSize:      cfg.Logging.StreamBufferSize,
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("fatal startup error")
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	zlog := log.Logger

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	healthStore := queries.New(db.Conn())

	cache, err := cardigann.NewCache(&cardigann.CacheConfig{
		DefinitionsDir: cfg.Indexer.Cardigann.DefinitionsDir,
		CustomDir:      cfg.Indexer.Cardigann.CustomDir,
	}, &zlog)
	if err != nil {
		return fmt.Errorf("init definition cache: %w", err)
	}

	repo := cardigann.NewRepository(&cardigann.RepositoryConfig{
		BaseURL:        cfg.Indexer.Cardigann.RepositoryURL,
		Branch:         cfg.Indexer.Cardigann.Branch,
		Version:        cfg.Indexer.Cardigann.Version,
		RequestTimeout: cfg.Indexer.Cardigann.RequestTimeoutDuration(),
	}, &zlog)

	defs := registry.NewStore(cache, repo, zlog)

	sessionStore := session.NewStore(
		time.Duration(cfg.Session.DefaultTTLMinutes)*time.Minute,
		time.Duration(cfg.Session.MinTTLSeconds)*time.Second,
		zlog,
	)
	sessionStore.SetPersister(healthStore)

	solverClient := solver.New(solver.Config{
		BaseURL:      cfg.Solver.URL,
		OuterTimeout: time.Duration(cfg.Solver.OuterTimeoutMs) * time.Millisecond,
	}, zlog)

	fetcher := session.NewFetcher(
		sessionStore,
		solverClient.AsSessionSolver(),
		time.Duration(cfg.Session.FetchTimeoutSeconds)*time.Second,
		zlog,
	)

	prober := registry.NewProber(defs, healthStore, fetcher, cfg.Indexer.Status, zlog)

	resolver := metadata.New(
		cfg.Metadata.BaseURL,
		cfg.Metadata.TimeoutDuration(),
		cfg.Metadata.TTLDuration(),
		zlog,
	)

	rateLimiter := ratelimit.NewLimiter(ratelimit.Config{
		QueryLimit:  cfg.Indexer.RateLimit.QueryLimit,
		QueryPeriod: cfg.Indexer.RateLimit.QueryPeriodDuration(),
		GrabLimit:   cfg.Indexer.RateLimit.GrabLimit,
		GrabPeriod:  cfg.Indexer.RateLimit.GrabPeriodDuration(),
	}, zlog)

	dispatcher := search.New(defs, healthStore, fetcher, resolver, cfg.Search, zlog)

	healthSvc := health.NewService(zlog)

	var hub *api.Hub
	if cfg.Logging.EnableWebSocket {
		hub = api.NewHub(zlog)
		go hub.Run()
		log.SetBroadcastHub(hub)
	}

	sched, err := scheduler.New(zlog)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	if err := sched.RegisterTask(scheduler.TaskConfig{
		ID:          "definition-refresh",
		Name:        "Definition Refresh",
		Description: "syncs Cardigann indexer definitions from the remote repository",
		Cron:        cfg.Health.DefinitionRefreshCron,
		RunOnStart:  true,
		Func: func(ctx context.Context) error {
			healthSvc.RegisterItemStr(string(health.CategoryDefinitions), "definitions", "Indexer Definitions")
			if err := defs.Sync(ctx, cfg.Indexer.Cardigann.RequestDelayDuration()); err != nil {
				healthSvc.SetErrorStr(string(health.CategoryDefinitions), "definitions", err.Error())
				return err
			}
			healthSvc.ClearStatusStr(string(health.CategoryDefinitions), "definitions")
			return nil
		},
	}); err != nil {
		return fmt.Errorf("register definition refresh task: %w", err)
	}

	if err := sched.RegisterTask(scheduler.TaskConfig{
		ID:          "health-probe",
		Name:        "Health Probe",
		Description: "probes every known indexer and updates its health row",
		Cron:        cfg.Health.ProbeCron,
		RunOnStart:  true,
		Func: func(ctx context.Context) error {
			return prober.RunOnce(ctx)
		},
	}); err != nil {
		return fmt.Errorf("register health probe task: %w", err)
	}

	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	server := api.NewServer(dispatcher, defs, healthStore, healthSvc, rateLimiter, hub, cfg, zlog)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Address()); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sched.Stop(); err != nil {
		log.Warn().Err(err).Msg("scheduler stop error")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
