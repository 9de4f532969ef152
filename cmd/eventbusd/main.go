package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/eventbus/pkg/async"
	"github.com/platinummonkey/eventbus/pkg/config"
	"github.com/platinummonkey/eventbus/pkg/engine"
	"github.com/platinummonkey/eventbus/pkg/httputil"
	"github.com/platinummonkey/eventbus/pkg/observability"
)

var version = "dev"

const maxRequestBytes = 1 << 20

var (
	publishSchedule = flag.String("publish-schedule", "@every 10s", "Cron schedule for synthetic heartbeat events (empty disables)")
	slowEvery       = flag.Int("slow-every", 5, "Make every n-th heartbeat hit the slow demo handler (0 disables)")
)

func main() {
	flag.Parse()

	env := config.LoadEnv()
	cfg, err := env.Resolve()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("service", "eventbusd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry, continuing without it")
	}

	otelMetrics, err := observability.NewOTelMetrics(nil)
	if err != nil {
		logger.WithError(err).Warn("Failed to create OpenTelemetry instruments")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	handlers := newHandlerRegistry(logger)
	eng, err := engine.New(cfg.Dispatch,
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
		engine.WithOTelMetrics(otelMetrics),
		engine.WithTracer(observability.Tracer()),
		engine.WithImpairmentCallback(handlers.Exclude),
	)
	if err != nil {
		logger.WithError(err).Error("Failed to start dispatch engine")
		os.Exit(1)
	}
	registerDemoHandlers(handlers, eng, logger, cfg.Dispatch.Timeout)

	if cfg.Observability.MetricsEnabled {
		registry.MustRegister(queueDepthCollectors(eng)...)
	}

	// Synthetic publishers
	scheduler := cron.New()
	if *publishSchedule != "" {
		hb := newHeartbeat(eng, handlers, logger, *slowEvery)
		if _, err := scheduler.AddFunc(*publishSchedule, hb.Send); err != nil {
			logger.WithError(err).Error("Failed to schedule heartbeat")
			os.Exit(1)
		}
		scheduler.Start()
		logger.WithField("schedule", *publishSchedule).Info("Heartbeat publisher started")
	}

	// Config file reloads
	if env.ConfigFile != "" {
		watcher, err := config.NewWatcher(env, logger)
		if err != nil {
			logger.WithError(err).Warn("Config file changes will not be applied")
		} else {
			defer watcher.Close()
			async.SafeGo(logger, "config watcher", func() {
				_ = watcher.Run(ctx, func(next *config.Config) {
					logger.SetLevel(next.Observability.LogLevel)
					if err := eng.Update(next.Dispatch); err != nil {
						logger.WithError(err).Error("Failed to apply dispatch configuration")
					}
				})
			})
		}
	}

	// HTTP surface
	checker := observability.NewHealthChecker(version)
	checker.Register("dispatch_engine", true, eng.HealthCheck())

	router := mux.NewRouter()
	router.Use(
		observability.HTTPMetricsMiddleware(metrics),
		httputil.RequestIDMiddleware(logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
		httputil.MaxBytesMiddleware(maxRequestBytes),
	)
	observability.RegisterHealthRoutes(router, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(router, registry)
	}
	newAPI(eng, handlers, logger).RegisterRoutes(router)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(router, "eventbusd"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("publishers", func(context.Context) error {
		<-scheduler.Stop().Done()
		return nil
	})
	shutdown.RegisterShutdownFunc("dispatch engine", eng.Close)
	shutdown.RegisterShutdownFunc("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	async.SafeGo(logger, "http server", func() {
		logger.WithField("addr", server.Addr).Info("Starting eventbusd")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP server failed")
			cancel()
		}
	})

	if err := shutdown.WaitForShutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown incomplete")
		os.Exit(1)
	}
	logger.Info("eventbusd stopped")
}

func queueDepthCollectors(eng *engine.Engine) []prometheus.Collector {
	depth := func(queue string, get func(engine.Stats) int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "eventbus_queue_depth",
			Help:        "Number of tasks waiting in a dispatch queue",
			ConstLabels: prometheus.Labels{"queue": queue},
		}, func() float64 {
			return float64(get(eng.Stats()))
		})
	}
	return []prometheus.Collector{
		depth(engine.SyncQueue, func(s engine.Stats) int { return s.SyncQueueLen }),
		depth(engine.AsyncQueue, func(s engine.Stats) int { return s.AsyncQueueLen }),
	}
}
