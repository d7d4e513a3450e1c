package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/runebook/runebook-gateway/internal/api"
	"github.com/runebook/runebook-gateway/internal/app/storage"
	"github.com/runebook/runebook-gateway/internal/cache"
	"github.com/runebook/runebook-gateway/internal/catalog"
	"github.com/runebook/runebook-gateway/internal/config"
	"github.com/runebook/runebook-gateway/internal/httpclient"
	"github.com/runebook/runebook-gateway/internal/service"
	"github.com/runebook/runebook-gateway/internal/sources"
	"github.com/runebook/runebook-gateway/internal/store"
	"github.com/runebook/runebook-gateway/internal/store/postgres"
	"github.com/runebook/runebook-gateway/internal/sync/coordinator"
	"github.com/runebook/runebook-gateway/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 30 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 35 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// Tracer names of the instrumented components
const (
	httpClientTracerName = "github.com/runebook/runebook-gateway/httpclient"
	catalogTracerName    = "github.com/runebook/runebook-gateway/catalog"
	sourcesTracerName    = "github.com/runebook/runebook-gateway/sources"
)

// GatewayAppOption is a function that configures the gateway app builder
type GatewayAppOption func(*gatewayAppConfig) error

type gatewayAppConfig struct {
	config *config.Config

	// component overrides, primarily for tests
	httpClient     httpclient.Client
	storageFactory storage.Factory

	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	metricsHandler http.Handler
}

func baseConfig(opts ...GatewayAppOption) (*gatewayAppConfig, error) {
	cfg := &gatewayAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return cfg, nil
}

// NewGatewayApp builds the gateway from its configuration: the fetch client, the
// catalog mirror, the source registry, the snapshot store, the facade and the
// HTTP server. Persisted snapshots are loaded into the build cache before the app
// is returned.
func NewGatewayApp(ctx context.Context, opts ...GatewayAppOption) (*GatewayApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	if cfg.storageFactory == nil {
		var factoryOpts []storage.DatabaseFactoryOption
		if tracer := cfg.tracer(postgres.StoreTracerName); tracer != nil {
			factoryOpts = append(factoryOpts, storage.WithTracer(tracer))
		}
		cfg.storageFactory, err = storage.NewStorageFactory(ctx, cfg.config, factoryOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
	}

	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			cfg.storageFactory.Cleanup()
		}
	}()

	snapshots, err := cfg.storageFactory.CreateStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}
	defer func() {
		if cleanupNeeded {
			_ = snapshots.Close()
		}
	}()

	mirror := buildMirror(cfg)

	gateway, err := buildGateway(cfg, mirror, snapshots)
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway: %w", err)
	}

	seedFromStore(ctx, gateway, snapshots)

	watcher, err := buildPatchWatcher(cfg, mirror, gateway)
	if err != nil {
		return nil, fmt.Errorf("failed to build patch watcher: %w", err)
	}

	httpServer, err := buildHTTPServer(cfg, gateway)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cleanupNeeded = false

	return &GatewayApp{
		config:     cfg.config,
		gateway:    gateway,
		watcher:    watcher,
		store:      snapshots,
		storage:    cfg.storageFactory,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) GatewayAppOption {
	return func(cfg *gatewayAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) GatewayAppOption {
	return func(cfg *gatewayAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		switch host {
		case "localhost":
			host = "127.0.0.1"
		case "":
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) GatewayAppOption {
	return func(cfg *gatewayAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithHTTPClient replaces the outbound fetch client
func WithHTTPClient(c httpclient.Client) GatewayAppOption {
	return func(cfg *gatewayAppConfig) error {
		cfg.httpClient = c
		return nil
	}
}

// WithStorageFactory replaces the configured storage factory
func WithStorageFactory(f storage.Factory) GatewayAppOption {
	return func(cfg *gatewayAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithTelemetry instruments the gateway with the providers of tel
func WithTelemetry(tel *telemetry.Telemetry) GatewayAppOption {
	return func(cfg *gatewayAppConfig) error {
		if tel == nil {
			return nil
		}
		cfg.tracerProvider = tel.TracerProvider()
		cfg.meterProvider = tel.MeterProvider()
		cfg.metricsHandler = tel.MetricsHandler()
		return nil
	}
}

func (b *gatewayAppConfig) tracer(name string) trace.Tracer {
	if b.tracerProvider == nil {
		return nil
	}
	return b.tracerProvider.Tracer(name)
}

func buildMirror(b *gatewayAppConfig) *catalog.Mirror {
	if b.httpClient == nil {
		b.httpClient = httpclient.NewClient(
			httpclient.WithReadTimeout(b.config.Fetch.GetReadTimeout()),
			httpclient.WithWriteTimeout(b.config.Fetch.GetWriteTimeout()),
			httpclient.WithTracer(b.tracer(httpClientTracerName)),
		)
	}

	dd := b.config.DataDragon
	return catalog.NewMirror(b.httpClient,
		catalog.WithEndpoint(dd.GetEndpoint()),
		catalog.WithLocale(dd.GetLocale()),
		catalog.WithVersionTTL(dd.GetVersionTTL()),
		catalog.WithTracer(b.tracer(catalogTracerName)),
	)
}

func buildGateway(b *gatewayAppConfig, mirror *catalog.Mirror, snapshots store.Store) (*service.Gateway, error) {
	slog.Info("Initializing sources", "sources", strings.Join(b.config.SourceNames(), ","))

	sourceMetrics, err := telemetry.NewSourceMetrics(b.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create source metrics: %w", err)
	}

	registry, err := sources.NewRegistryFromConfig(b.config.Sources, b.httpClient,
		sources.WithPatchFunc(mirror.CurrentVersion),
		sources.WithTracer(b.tracer(sourcesTracerName)),
		sources.WithMetrics(sourceMetrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create source registry: %w", err)
	}

	cacheMetrics, err := telemetry.NewCacheMetrics(b.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache metrics: %w", err)
	}

	cacheCfg := b.config.Cache
	return service.New(registry, mirror,
		service.WithCacheOptions(
			cache.WithMaxEntries(cacheCfg.GetMaxEntries()),
			cache.WithMaxAge(cacheCfg.GetMaxAge()),
			cache.WithRefreshTimeout(cacheCfg.GetRefreshTimeout()),
			cache.WithMetrics(cacheMetrics),
		),
		service.WithBuildInstallHook(store.InstallHook(snapshots)),
		service.WithTracer(b.tracer(service.ServiceTracerName)),
	)
}

// seedFromStore installs the persisted snapshots into the build cache. Seeded
// entries keep their stored patch so the staleness rule still applies to them.
func seedFromStore(ctx context.Context, gateway *service.Gateway, snapshots store.Store) {
	snaps, err := snapshots.LoadLatest(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load build snapshots, starting with an empty cache", "error", err)
		return
	}

	seeded := 0
	for _, snap := range snaps {
		if gateway.SeedBuild(snap.Entry()) {
			seeded++
		}
	}
	if len(snaps) > 0 {
		slog.InfoContext(ctx, "Seeded build cache from snapshots",
			"snapshots", len(snaps),
			"seeded", seeded)
	}
}

func buildPatchWatcher(b *gatewayAppConfig, mirror *catalog.Mirror, gateway *service.Gateway) (coordinator.Coordinator, error) {
	interval := b.config.PatchWatch.GetInterval()
	if interval <= 0 {
		slog.Info("Patch watcher disabled")
		return nil, nil
	}

	patchMetrics, err := telemetry.NewPatchMetrics(b.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create patch metrics: %w", err)
	}

	return coordinator.New(mirror, gateway,
		coordinator.WithInterval(interval),
		coordinator.WithPatchMetrics(patchMetrics),
	), nil
}

func buildHTTPServer(b *gatewayAppConfig, svc service.Service) (*http.Server, error) {
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// tracing and metrics wrap everything else so rejected requests are observed too
	var observe []func(http.Handler) http.Handler
	if b.tracerProvider != nil {
		observe = append(observe, telemetry.TracingMiddleware(b.tracerProvider))
	}
	if b.meterProvider != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		observe = append(observe, metricsMiddleware)
	}

	router := api.NewServer(svc,
		api.WithMiddlewares(append(observe, b.middlewares...)...),
		api.WithMetricsHandler(b.metricsHandler),
	)

	server := &http.Server{
		Addr:              b.address,
		Handler:           router,
		ReadTimeout:       b.readTimeout,
		ReadHeaderTimeout: b.readTimeout,
		WriteTimeout:      b.writeTimeout,
		IdleTimeout:       b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
