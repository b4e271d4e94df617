package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fuel-registry/internal/audit"
	"fuel-registry/internal/config"
	"fuel-registry/internal/docstore"
	"fuel-registry/internal/docstore/memory"
	"fuel-registry/internal/docstore/postgres"
	"fuel-registry/internal/httpmw"
	"fuel-registry/internal/logging"
	"fuel-registry/internal/observability/metrics"
	registryapp "fuel-registry/internal/registry/application"
	registryhttp "fuel-registry/internal/registry/interfaces/http"
	routingapp "fuel-registry/internal/routing/application"
	routing "fuel-registry/internal/routing/domain"
	routingmemory "fuel-registry/internal/routing/infrastructure/memory"
	"fuel-registry/internal/routing/infrastructure/provider"
	"fuel-registry/internal/routing/infrastructure/redisstore"
	"fuel-registry/internal/routing/infrastructure/registrysource"
	routinghttp "fuel-registry/internal/routing/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, db, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store error")
	}
	if db != nil {
		defer db.Close()
	}
	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(store)

	resolver, err := registryapp.NewResolver(store)
	if err != nil {
		logger.Fatal().Err(err).Msg("resolver error")
	}
	codes, err := registryapp.NewCodeAllocator(store)
	if err != nil {
		logger.Fatal().Err(err).Msg("code allocator error")
	}
	writer, err := registryapp.NewWriter(store, resolver, codes, registryapp.WithWriterLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("writer error")
	}
	deleter, err := registryapp.NewDeleter(store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("deleter error")
	}
	reader, err := registryapp.NewReader(store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("reader error")
	}
	analyses, err := registryapp.NewAnalysisService(store, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("analysis service error")
	}
	stationHandler, err := registryhttp.NewHandler(registryhttp.Services{
		Writer:    writer,
		Deleter:   deleter,
		Reader:    reader,
		Analyses:  analyses,
		Validator: registryapp.NewValidator(),
	}, auditRepo, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("station handler error")
	}

	mux := http.NewServeMux()

	routingHandler, err := buildRouting(ctx, cfg, reader, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("routing error")
	}
	if routingHandler != nil {
		for _, path := range routingHandler.Paths() {
			mux.Handle(path, routingHandler)
		}
	} else {
		logger.Warn().Msg("ROUTING_API_KEY not set, routing endpoints disabled")
	}
	mux.Handle("/api/v1/stations", stationHandler)
	mux.Handle("/api/v1/stations/", stationHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if p, ok := store.(pinger); ok {
			pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(pingCtx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("store unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	limiter := httpmw.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	limiter.Start(ctx)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpmw.Logging(logger, httpmw.RateLimit(limiter, mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http shutdown error")
		}
	}()

	logger.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("http server error")
	}
}

// openStore returns the Postgres store when a DSN is configured, otherwise an in-memory one.
func openStore(cfg config.Config, logger zerolog.Logger) (docstore.Store, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
		return memory.NewStore(), nil, nil
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	store, err := postgres.NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, db, nil
}

// buildRouting wires the distance proxy, quota and nearby search.
// It returns nil when no routing API key is configured.
func buildRouting(ctx context.Context, cfg config.Config, reader *registryapp.Reader, logger zerolog.Logger) (*routinghttp.Handler, error) {
	if cfg.Routing.APIKey == "" {
		return nil, nil
	}

	var (
		upstream routing.Provider
		err      error
	)
	opts := []provider.Option{provider.WithBaseURL(cfg.Routing.BaseURL)}
	switch cfg.Routing.Provider {
	case config.ProviderMatrix:
		upstream, err = provider.NewMatrix(cfg.Routing.APIKey, opts...)
	default:
		upstream, err = provider.NewRoutes(cfg.Routing.APIKey, opts...)
	}
	if err != nil {
		return nil, err
	}

	var (
		cache   routingapp.Cache
		counter routingapp.Counter
	)
	if cfg.RedisURL != "" {
		rdb, err := redisstore.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if cache, err = redisstore.NewCache(rdb, cfg.Routing.CacheTTL); err != nil {
			return nil, err
		}
		if counter, err = redisstore.NewCounter(rdb); err != nil {
			return nil, err
		}
		logger.Info().Msg("route cache and quota backed by redis")
	} else {
		memCache := routingmemory.NewCache(cfg.Routing.CacheTTL, nil)
		sweeper, err := routingapp.NewSweeper(memCache, cfg.Routing.SweepInterval, nil, logger)
		if err != nil {
			return nil, err
		}
		sweeper.Start(ctx)
		cache = memCache
		counter = routingmemory.NewCounter(nil)
	}

	quota, err := routingapp.NewQuotaService(counter, map[routing.Surface]int64{
		routing.SurfaceMaps:   cfg.Quota.MapsDaily,
		routing.SurfaceRoutes: cfg.Quota.RoutesDaily,
	}, nil)
	if err != nil {
		return nil, err
	}
	proxy, err := routingapp.NewProxy(upstream, cache, quota,
		routingapp.WithTimeout(cfg.Routing.Timeout),
		routingapp.WithProxyLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	source, err := registrysource.New(reader)
	if err != nil {
		return nil, err
	}
	nearby, err := routingapp.NewNearbyService(source, proxy,
		routingapp.WithRadiusKm(cfg.Nearby.RadiusKm),
		routingapp.WithMaxCandidates(cfg.Nearby.MaxCandidates),
	)
	if err != nil {
		return nil, err
	}
	return routinghttp.NewHandler(proxy, quota, nearby, logger)
}
