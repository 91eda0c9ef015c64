// Package config loads warden configuration.
//
// Values come from three layers, each overriding the previous one: built-in
// defaults, an optional YAML file named by WARDEN_CONFIG_FILE, and WARDEN_*
// environment variables.
//
// Commonly set variables:
//
//	WARDEN_PORT="8080"
//	WARDEN_POSTGRES_URL="postgres://warden@db/warden"
//	WARDEN_PROFILE_DRIVER="sqlite3"          # sqlite3 or postgres
//	WARDEN_PROFILE_DSN="file:/var/lib/warden/profiles.db"
//	WARDEN_REDIS_URL="redis://redis:6379/0"
//	WARDEN_TOKEN_SECRET="<32+ bytes, raw or base64>"
//	WARDEN_SESSION_MAX="3"
//	WARDEN_LOCKOUT_THRESHOLD="5"
//	WARDEN_AUDIT_RETENTION_DAYS="90"
//	WARDEN_AUDIT_ARCHIVE_ENABLED="true"
//	WARDEN_AUDIT_S3_BUCKET="warden-audit"
//	WARDEN_SYNC_SCHEDULE="@every 15m"
//	WARDEN_LOG_LEVEL="info"
//
// The same settings in YAML:
//
//	server:
//	  port: "8080"
//	database:
//	  identity:
//	    primary_url: postgres://warden@db/warden
//	token:
//	  secret: ...
//	  ttl: 24h
//	sync:
//	  schedule: "@every 15m"
//
// Section types convert to the configs of the packages they drive, for
// example Session.Authority() and Lockout.Policy().
package config
