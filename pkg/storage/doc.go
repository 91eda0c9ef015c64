// Package storage opens the backing services shared by the rest of warden:
// the PostgreSQL identity and audit database (with optional read replicas),
// the Redis instance holding sessions and rate-limit counters, and the S3
// compatible bucket that receives archived audit events.
//
// Each constructor verifies connectivity before returning, so a process that
// starts successfully has reachable dependencies.
package storage
