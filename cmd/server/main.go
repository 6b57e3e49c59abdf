package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"healthconsent/internal/consent/evaluator"
	consenthandler "healthconsent/internal/consent/handler"
	consentmetrics "healthconsent/internal/consent/metrics"
	consentservice "healthconsent/internal/consent/service"
	consentstore "healthconsent/internal/consent/store"
	gatewayhandler "healthconsent/internal/gateway/handler"
	gateway "healthconsent/internal/gateway/service"
	jwttoken "healthconsent/internal/jwt_token"
	ledgerhandler "healthconsent/internal/ledger/handler"
	ledgermetrics "healthconsent/internal/ledger/metrics"
	ledgerservice "healthconsent/internal/ledger/service"
	ledgerstore "healthconsent/internal/ledger/store"
	"healthconsent/internal/platform/config"
	"healthconsent/internal/platform/database"
	"healthconsent/internal/platform/health"
	"healthconsent/internal/platform/logger"
	"healthconsent/internal/platform/metrics"
	platformredis "healthconsent/internal/platform/redis"
	"healthconsent/internal/registry"
	registrymetrics "healthconsent/internal/registry/metrics"
	"healthconsent/internal/seeder"
	httptransport "healthconsent/internal/transport/http"
	"healthconsent/migrations"
	"healthconsent/pkg/platform/circuit"
)

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	log.Info("initializing healthconsent",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
		"postgres", cfg.Database.URL != "",
		"redis", cfg.Redis.URL != "",
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	healthHandler := health.New(cfg.Server.Environment)

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.Database.URL
	pool, err := database.New(ctx, dbCfg)
	if err != nil {
		return err
	}
	defer pool.Close() //nolint:errcheck // best-effort on shutdown
	if pool != nil {
		if cfg.Database.MigrateOnStart {
			if err := database.Migrate(ctx, pool.DB(), migrations.FS); err != nil {
				return err
			}
			log.Info("database migrations applied")
		}
		healthHandler.RegisterCheck("database", pool.Health)
	}

	redisClient, err := platformredis.New(ctx, cfg.Redis, reg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck // best-effort on shutdown
		healthHandler.RegisterCheck("redis", redisClient.Health)
	}

	consentMetrics := consentmetrics.New(reg)
	grantStore, grantTx := consentStores(pool, cfg, consentMetrics)
	consents := consentservice.New(grantStore, grantTx, log, consentservice.WithMetrics(consentMetrics))
	eval := evaluator.New(grantStore, grantTx, log, evaluator.WithMetrics(consentMetrics))

	records := ledgerStore(pool)
	if pool == nil && cfg.Server.SeedDemoData {
		if err := seeder.New(grantStore, records, log).SeedAll(ctx); err != nil {
			return err
		}
	}

	ledger := ledgerservice.New(records, log,
		ledgerservice.WithMetrics(ledgermetrics.New(reg)),
		ledgerservice.WithLimits(cfg.Ledger.DefaultLimit, cfg.Ledger.MaxLimit),
	)

	registryMetrics := registrymetrics.New(reg)
	breaker := circuit.New("registry",
		circuit.WithFailureThreshold(cfg.Registry.BreakerThreshold),
		circuit.WithCooldown(cfg.Registry.BreakerCooldown),
	)
	registryClient := registry.NewClient(cfg.Registry.BaseURL, cfg.Registry.APIKey,
		registry.WithTimeout(cfg.Registry.Timeout),
		registry.WithBreaker(breaker),
		registry.WithMetrics(registryMetrics),
	)
	var recordCache registry.Cache = registry.NewMemoryCache(cfg.Registry.CacheTTL)
	if redisClient != nil {
		recordCache = registry.NewRedisCache(redisClient.Client, cfg.Registry.CacheTTL)
	}
	patientRecords := registry.NewCachedSource(registryClient, recordCache, log, registryMetrics)
	healthHandler.RegisterCheck("registry_breaker", func(context.Context) error {
		if breaker.State() == circuit.StateOpen {
			return errors.New("registry circuit open")
		}
		return nil
	})

	gw := gateway.New(eval, ledger, patientRecords, log)
	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	router := httptransport.NewRouter(httptransport.Config{
		TrustedProxies: parseTrustedProxies(cfg.Server.TrustedProxies, log),
	}, httptransport.Dependencies{
		Logger:   log,
		Tokens:   tokens,
		Metrics:  metrics.New(reg),
		Gatherer: reg,
		Public:   []httptransport.RouteRegistrar{healthHandler},
		Protected: []httptransport.RouteRegistrar{
			consenthandler.New(consents, eval, log),
			gatewayhandler.New(gw, registryClient, log),
			ledgerhandler.New(ledger, log),
		},
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// consentStores picks Postgres with advisory-lock transactions when a database
// is configured, otherwise the in-memory store with the sharded mutex runner.
func consentStores(pool *database.Pool, cfg config.Config, m *consentmetrics.Metrics) (consentservice.Store, consentservice.ConsentStoreTx) {
	if pool == nil {
		st := consentstore.New()
		return st, consentservice.NewShardedTx(st, cfg.Consent.TxTimeout, m)
	}
	return consentstore.NewPostgres(pool.DB()), newConsentPostgresTx(pool.DB(), cfg.Consent.TxTimeout)
}

func ledgerStore(pool *database.Pool) ledgerservice.Store {
	if pool == nil {
		return ledgerstore.New()
	}
	return ledgerstore.NewPostgres(pool.DB())
}

func parseTrustedProxies(raw []string, log *slog.Logger) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(raw))
	for _, s := range raw {
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			addr, addrErr := netip.ParseAddr(s)
			if addrErr != nil {
				log.Warn("ignoring invalid trusted proxy", "value", s)
				continue
			}
			prefix = netip.PrefixFrom(addr, addr.BitLen())
		}
		out = append(out, prefix)
	}
	return out
}
