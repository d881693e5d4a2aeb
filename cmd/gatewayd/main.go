// Command gatewayd runs the edge rate-limiting gateway: a reverse proxy in
// front of an origin, evaluating every request against the active ruleset
// before forwarding it.
package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/edgelimit/gateway/configcache"
	"github.com/edgelimit/gateway/counter"
	"github.com/edgelimit/gateway/metrics"
	"github.com/edgelimit/gateway/pipeline"
	"github.com/edgelimit/gateway/ruleset"
	"github.com/edgelimit/gateway/rulestore"
	"github.com/edgelimit/gateway/rulestore/httpapi"
	memrulestore "github.com/edgelimit/gateway/rulestore/memory"
	"github.com/edgelimit/gateway/rulestore/redisstore"
	"github.com/edgelimit/gateway/settings"
	"github.com/edgelimit/gateway/store"
	memstore "github.com/edgelimit/gateway/store/memory"
	redisbackend "github.com/edgelimit/gateway/store/redis"
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := settings.Load()
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	backend, err := buildStore(cfg)
	if err != nil {
		return err
	}

	rules := buildRuleStore(cfg, backend)

	collector := metrics.NewCollector()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	cache, err := configcache.New(ctx, rules, cfg.ConfigCacheTTL,
		configcache.WithStaleHandler(func(err error) {
			logger.Warn("config cache refresh failed, serving stale ruleset", zap.Error(err))
		}),
		configcache.WithValidationHandler(func(warnings []ruleset.Warning) {
			for _, w := range warnings {
				logger.Warn("ruleset validation warning", zap.String("rule", w.Rule), zap.String("detail", w.Detail))
			}
		}),
		configcache.WithRefreshObserver(collector.RecordConfigRefresh),
	)
	cancel()
	if err != nil {
		return err
	}
	defer cache.Close()

	origin, err := buildOrigin(cfg.OriginURL)
	if err != nil {
		return err
	}

	handler := pipeline.New(pipeline.Config{
		ConfigCache:    cache,
		CounterStore:   counter.New(backend),
		Origin:         origin,
		Logger:         logger,
		Metrics:        collector,
		CounterBackend: cfg.ConfigStorage,
	})

	admin := chi.NewRouter()
	httpapi.New(rules, cache, logger).Routes(admin)
	admin.Handle(cfg.RateLimitInfoPath, handler.InfoHandler())
	admin.Handle("/metrics", promhttp.Handler())

	proxySrv := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	adminSrv := &http.Server{Addr: cfg.AdminAddr, Handler: admin}

	errCh := make(chan error, 2)
	go func() { errCh <- proxySrv.ListenAndServe() }()
	go func() { errCh <- adminSrv.ListenAndServe() }()

	logger.Info("gatewayd started",
		zap.String("listen", cfg.ListenAddr),
		zap.String("admin", cfg.AdminAddr),
		zap.String("backend", cfg.ConfigStorage),
		zap.String("origin", cfg.OriginURL),
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Info("shutting down", zap.String("signal", s.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server exited", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = proxySrv.Shutdown(shutdownCtx)
	_ = adminSrv.Shutdown(shutdownCtx)
	return nil
}

func buildStore(cfg settings.Settings) (store.Store, error) {
	switch cfg.ConfigStorage {
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, err
		}
		return redisbackend.New(client), nil
	case "memory", "":
		return memstore.New(), nil
	default:
		return nil, errors.New("gatewayd: unknown GATEWAY_CONFIG_STORAGE " + cfg.ConfigStorage)
	}
}

func buildRuleStore(cfg settings.Settings, backend store.Store) rulestore.Store {
	if cfg.ConfigStorage == "redis" {
		return redisstore.New(backend)
	}
	return memrulestore.New()
}

func buildOrigin(originURL string) (http.Handler, error) {
	u, err := url.Parse(originURL)
	if err != nil {
		return nil, err
	}
	return httputil.NewSingleHostReverseProxy(u), nil
}
