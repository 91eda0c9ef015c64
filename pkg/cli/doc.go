// Package cli implements warden-admin, the operator tool for maintenance
// that normally runs on the server's schedule.
//
// # Commands
//
// sync: reconcile profiles with identities
//
//	warden-admin sync
//	warden-admin sync --identity 42
//
// integrity: list discrepancies between the two stores; nothing is repaired
//
//	warden-admin integrity --strict
//
// audit-cleanup: apply the retention policy
//
//	warden-admin audit-cleanup --days 30 --archive
//
// audit-archive: upload old events to the archive bucket without deleting
//
//	warden-admin audit-archive --before 2024-01-01
//
// audit-replay: write events spooled by a failing audit store back to it
//
//	warden-admin audit-replay
//
// Every command prints its result as JSON on stdout. The database and Redis
// connections are opened only after the flags parsed.
package cli
