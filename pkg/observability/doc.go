// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Overview
//
// This package centralizes observability infrastructure for the event bus:
// JSON logging, metrics for publishes, deliveries, dispatch loop transitions
// and thread pools, health checks, and distributed tracing integration.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("pool", "sync").Info("worker started")
//
// Context-aware logging:
//
//	ctx = observability.WithEventID(ctx, eventID)
//	observability.FromContext(ctx).WithError(err).Error("handler failed")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordTask("sync", elapsed, err)
//	metrics.RecordEviction("async")
//
// All Record methods are nil-safe, so components run without metrics too.
//
// # Health Checks
//
// Configure health checker:
//
//	checker := observability.NewHealthChecker(version)
//	checker.Register("engine", true, engine.HealthCheck)
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
// Initialize tracing:
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:        true,
//		ServiceName:    "eventbusd",
//		ServiceVersion: "v1.0.0",
//		Endpoint:       "otel-collector:4317",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/engine: Main consumer of the metrics and health checks
package observability
