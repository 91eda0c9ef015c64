// Package audit records security and business events and serves the read
// side used by lockout, reporting and retention.
//
// # Recording
//
// Recorder is the only emission port. AsyncRecorder puts events on a
// bounded queue drained by one writer goroutine, so Record never blocks
// and events emitted by one operation keep their order. Write failures are
// logged, counted and spooled to an optional FileDeadLetter; they are never
// returned to the caller.
//
//	recorder := audit.NewAsyncRecorder(store, audit.AsyncConfig{QueueSize: 1024, Server: host},
//		audit.WithLogger(logger), audit.WithMetrics(metrics), audit.WithDeadLetter(dl))
//	defer recorder.Close(ctx)
//
//	recorder.Record(ctx, audit.LoginFailedEvent(email, "bad password", auth.ChannelToken).WithRequest(r))
//
// # Storage
//
// DBStore keeps events in the Postgres audit_logs table with a JSONB detail
// column. Events are ordered by timestamp, then id.
//
// # Reports and retention
//
// Service builds statistics, timelines, security and per-user reports,
// exports (JSON, NDJSON, CSV) and applies the retention policy, archiving
// expired events to object storage before deleting them when an Archiver
// is configured.
//
// Handlers exposes the admin query surface under /api/admin/audit and
// Middleware records API access and authorization denials.
package audit
