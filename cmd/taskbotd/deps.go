package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskbot/internal/analysis"
	"github.com/fyrsmithlabs/taskbot/internal/bus"
	"github.com/fyrsmithlabs/taskbot/internal/cache"
	"github.com/fyrsmithlabs/taskbot/internal/config"
	"github.com/fyrsmithlabs/taskbot/internal/destination"
	"github.com/fyrsmithlabs/taskbot/internal/extraction"
	"github.com/fyrsmithlabs/taskbot/internal/logging"
	"github.com/fyrsmithlabs/taskbot/internal/oracle"
	"github.com/fyrsmithlabs/taskbot/internal/pipeline"
	"github.com/fyrsmithlabs/taskbot/internal/secrets"
	"github.com/fyrsmithlabs/taskbot/internal/session"
	"github.com/fyrsmithlabs/taskbot/internal/telemetry"
)

// resultCache is an analysis cache the daemon can health-check and close.
type resultCache interface {
	analysis.Cache
	Ping(ctx context.Context) error
	Close() error
}

// dependencies holds all infrastructure dependencies.
type dependencies struct {
	logger         *logging.Logger
	telemetry      *telemetry.Telemetry
	natsConn       *nats.Conn
	cache          resultCache
	oracle         analysis.Oracle
	scrubber       secrets.Scrubber
	provider       destination.Provider
	fileProvider   *destination.FileProvider
	committer      destination.Committer
	registry       *prometheus.Registry
	metricsHandler http.Handler
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if d.natsConn != nil {
		if err := d.natsConn.Drain(); err != nil {
			d.natsConn.Close()
		}
	}
	if d.cache != nil {
		if err := d.cache.Close(); err != nil {
			d.logger.Warn(ctx, "cache close failed", zap.Error(err))
		}
	}
	if d.telemetry != nil {
		if err := d.telemetry.Shutdown(ctx); err != nil {
			d.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
		}
	}
	_ = d.logger.Sync()
}

// initLogger maps the logging section onto a logger config.
func initLogger(cfg *config.Config) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	logCfg.Level = level
	logCfg.Format = cfg.Logging.Format

	var provider otellog.LoggerProvider
	if cfg.Logging.OTEL {
		logCfg.Output.OTEL = true
		provider = global.GetLoggerProvider()
	}
	return logging.NewLogger(logCfg, provider)
}

// initTelemetry maps the observability section onto telemetry.
func initTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Telemetry, error) {
	telCfg := telemetry.NewDefaultConfig()
	telCfg.Enabled = cfg.Observability.EnableTelemetry
	telCfg.Endpoint = cfg.Observability.Endpoint
	telCfg.ServiceName = cfg.Observability.ServiceName
	telCfg.ServiceVersion = version
	telCfg.Insecure = cfg.Observability.Insecure
	telCfg.Sampling.Rate = cfg.Observability.SamplingRate
	if cfg.Observability.Protocol != "" {
		telCfg.Protocol = cfg.Observability.Protocol
	}
	return telemetry.New(ctx, telCfg)
}

func initScrubber(cfg *config.Config) (secrets.Scrubber, error) {
	if cfg.Secrets.Disabled {
		return secrets.Nop(), nil
	}
	scrubCfg := secrets.DefaultConfig()
	scrubCfg.AllowList = cfg.Secrets.AllowList
	scrubCfg.Gitleaks = !cfg.Secrets.LocalRulesOnly
	return secrets.New(scrubCfg)
}

func initCache(ctx context.Context, cfg *config.Config) (resultCache, error) {
	if cfg.Cache.Backend == config.CacheRedis {
		c, err := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword.Value(),
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		if err := c.Ping(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("redis at %s: %w", cfg.Cache.RedisAddr, err)
		}
		return c, nil
	}
	return cache.NewMemory(cfg.Cache.MaxEntries, analysis.CacheTTL), nil
}

func initOracle(cfg *config.Config) (analysis.Oracle, error) {
	oc := oracle.Config{
		Provider:          cfg.Oracle.Provider,
		Model:             cfg.Oracle.Model,
		APIKey:            cfg.Oracle.APIKey.Value(),
		BaseURL:           cfg.Oracle.BaseURL,
		Temperature:       cfg.Oracle.Temperature,
		MaxTokens:         cfg.Oracle.MaxTokens,
		RequestsPerMinute: cfg.Oracle.RequestsPerMinute,
	}
	if cfg.Oracle.Provider == config.OracleStatic {
		data, err := os.ReadFile(cfg.Oracle.StaticResponse)
		if err != nil {
			return nil, fmt.Errorf("read static oracle response: %w", err)
		}
		oc.StaticResponse = string(data)
	}
	return oracle.New(oc)
}

// initDependencies connects to infrastructure and builds the collaborators
// the pipeline needs. On error everything created so far is released.
func initDependencies(ctx context.Context, cfg *config.Config) (_ *dependencies, err error) {
	logger, err := initLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	d := &dependencies{logger: logger}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	if d.telemetry, err = initTelemetry(ctx, cfg); err != nil {
		return nil, err
	}
	for _, problem := range d.telemetry.Problems() {
		logger.Warn(ctx, "telemetry degraded", zap.Error(problem))
	}

	if cfg.NATS.URL != "" {
		if d.natsConn, err = bus.Connect(cfg.NATS.URL, logger.Named("nats")); err != nil {
			return nil, err
		}
		logger.Info(ctx, "connected to NATS", zap.String("url", d.natsConn.ConnectedUrlRedacted()))
	}

	if d.cache, err = initCache(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	if d.oracle, err = initOracle(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize oracle: %w", err)
	}
	if d.scrubber, err = initScrubber(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize secret scrubber: %w", err)
	}

	timeout := cfg.NATS.RequestTimeout.Duration()
	switch cfg.Destinations.Provider {
	case config.DestinationsNATS:
		d.provider = destination.NewNATSProvider(d.natsConn, timeout)
	default:
		if d.fileProvider, err = destination.NewFileProvider(cfg.Destinations.Path, logger); err != nil {
			return nil, err
		}
		d.provider = d.fileProvider
	}
	switch cfg.Destinations.Committer {
	case config.DestinationsNATS:
		d.committer = destination.NewNATSCommitter(d.natsConn, timeout)
	default:
		d.committer = destination.NewLogCommitter(logger)
	}

	d.registry = prometheus.NewRegistry()
	d.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.metricsHandler = promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{Registry: d.registry})

	return d, nil
}

// initPipeline builds the session store, orchestrator and pipeline service.
func initPipeline(cfg *config.Config, d *dependencies) (*pipeline.Service, error) {
	var extractorOpts []extraction.Option
	if cfg.Vocabulary != nil {
		extractorOpts = append(extractorOpts, extraction.WithVocabulary(*cfg.Vocabulary))
	}
	extractor := extraction.New(extractorOpts...)
	store := session.NewStore(extractor, session.WithMaxSessions(cfg.Session.MaxSessions))

	analysisMetrics, err := analysis.NewMetrics(d.telemetry.Meter(analysis.InstrumentationName))
	if err != nil {
		return nil, fmt.Errorf("analysis metrics: %w", err)
	}
	orch, err := analysis.New(store, d.oracle, d.cache,
		analysis.WithLogger(d.logger),
		analysis.WithMetrics(analysisMetrics),
		analysis.WithTracer(d.telemetry.Tracer(analysis.InstrumentationName)),
		analysis.WithScrubber(d.scrubber),
		analysis.WithOracleTimeout(cfg.Oracle.Timeout.Duration()),
	)
	if err != nil {
		return nil, err
	}

	metrics := pipeline.NewMetrics(store)
	if err := metrics.Register(d.registry); err != nil {
		return nil, fmt.Errorf("register pipeline metrics: %w", err)
	}

	return pipeline.New(pipeline.Config{
		Store:        store,
		Orchestrator: orch,
		Provider:     d.provider,
		Committer:    d.committer,
		Preferences:  session.NewPreferences(cfg.Session.PreferenceTTL.Duration(), nil),
		Extractor:    extractor,
		Logger:       d.logger,
		Metrics:      metrics,
		Tracer:       d.telemetry.Tracer("github.com/fyrsmithlabs/taskbot/internal/pipeline"),
	})
}
