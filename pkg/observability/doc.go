// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Structured Logging
//
// Logger wraps logrus with a JSON formatter:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("email", email).Warn("login throttled")
//
// The HTTP middleware puts a request-scoped logger on the context:
//
//	observability.FromContext(r.Context()).Info("handling login")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordLogin("token", "success")
//	metrics.RecordAuditEvent("dropped")
//
// All Record/Set methods accept a nil *Metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version).
//		AddDatabase("identity", identityDB, true).
//		AddDatabase("profiles", profileDB, false).
//		AddRedis("sessions", redisClient, true)
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "warden",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
//	ctx, span := observability.StartSpan(ctx, "accounts", "Authenticate")
//	defer func() { observability.EndSpan(span, err) }()
//
// # Shutdown
//
// ShutdownManager runs named steps in order under one deadline.
package observability
