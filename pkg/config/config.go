package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/identitysync"
	"github.com/platinummonkey/warden/pkg/lockout"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/platinummonkey/warden/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         storage.RedisConfig `yaml:"redis"`
	Token         TokenConfig         `yaml:"token"`
	Accounts      AccountsConfig      `yaml:"accounts"`
	Session       SessionConfig       `yaml:"session"`
	Lockout       LockoutConfig       `yaml:"lockout"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Audit         AuditConfig         `yaml:"audit"`
	Sync          SyncConfig          `yaml:"sync"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	// TrustedProxies lists the CIDRs whose X-Forwarded-For is believed;
	// empty means the peer address is the client address
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// ProxyTrust parses TrustedProxies
func (s ServerConfig) ProxyTrust() (*auth.ProxyTrust, error) {
	return auth.NewProxyTrust(s.TrustedProxies)
}

// DatabaseConfig covers the identity database and the profile database
type DatabaseConfig struct {
	Identity storage.PostgresConfig `yaml:"identity"`

	// ProfileDriver is "sqlite3" or "postgres"
	ProfileDriver string `yaml:"profile_driver"`
	ProfileDSN    string `yaml:"profile_dsn"`

	IdentityCacheSize int           `yaml:"identity_cache_size"`
	IdentityCacheTTL  time.Duration `yaml:"identity_cache_ttl"`
}

// TokenConfig configures API token signing
type TokenConfig struct {
	// Secret is raw or base64, at least 32 bytes once decoded
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

// Key decodes the signing secret
func (t TokenConfig) Key() ([]byte, error) {
	return auth.DecodeSecret(t.Secret)
}

// AccountsConfig holds registration and login policy
type AccountsConfig struct {
	RequireVerified   bool `yaml:"require_verified"`
	MinPasswordLength int  `yaml:"min_password_length"`
	BcryptCost        int  `yaml:"bcrypt_cost"`
}

// Policy converts to the accounts service config
func (a AccountsConfig) Policy() accounts.Config {
	return accounts.Config{
		RequireVerified:   a.RequireVerified,
		MinPasswordLength: a.MinPasswordLength,
	}
}

// SessionConfig configures browser sessions and their cookies
type SessionConfig struct {
	MaxSessions    int           `yaml:"max_sessions"`
	TTL            time.Duration `yaml:"ttl"`
	RememberTTL    time.Duration `yaml:"remember_ttl"`
	KeyPrefix      string        `yaml:"key_prefix"`
	SessionCookie  string        `yaml:"session_cookie"`
	RememberCookie string        `yaml:"remember_cookie"`
	SecureCookies  bool          `yaml:"secure_cookies"`
}

// Authority converts to the session authority config
func (s SessionConfig) Authority() session.Config {
	return session.Config{
		MaxSessions: s.MaxSessions,
		SessionTTL:  s.TTL,
		RememberTTL: s.RememberTTL,
		KeyPrefix:   s.KeyPrefix,
	}
}

// Cookies converts to the dispatcher cookie settings
func (s SessionConfig) Cookies() middleware.Cookies {
	return middleware.Cookies{
		SessionName:  s.SessionCookie,
		RememberName: s.RememberCookie,
		SessionTTL:   s.TTL,
		RememberTTL:  s.RememberTTL,
		Secure:       s.SecureCookies,
	}
}

// LockoutConfig configures failed login throttling
type LockoutConfig struct {
	Window      time.Duration `yaml:"window"`
	Threshold   int           `yaml:"threshold"`
	IPThreshold int           `yaml:"ip_threshold"`
}

// Policy converts to the lockout policy config
func (l LockoutConfig) Policy() lockout.Config {
	return lockout.Config{
		Window:      l.Window,
		Threshold:   l.Threshold,
		IPThreshold: l.IPThreshold,
	}
}

// RateLimitConfig configures the per-IP limit on login endpoints
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// Limiter converts to the middleware limiter config
func (r RateLimitConfig) Limiter() middleware.RateLimitConfig {
	return middleware.RateLimitConfig{
		RequestsPerWindow: r.Requests,
		WindowDuration:    r.Window,
	}
}

// AuditConfig configures the audit pipeline and retention
type AuditConfig struct {
	QueueSize      int              `yaml:"queue_size"`
	WriteTimeout   time.Duration    `yaml:"write_timeout"`
	Server         string           `yaml:"server"`
	Environment    string           `yaml:"environment"`
	RetentionDays  int              `yaml:"retention_days"`
	ArchiveEnabled bool             `yaml:"archive_enabled"`
	Archive        storage.S3Config `yaml:"archive"`
	DeadLetterDir  string           `yaml:"dead_letter_dir"`
}

// Async converts to the async recorder config
func (a AuditConfig) Async() audit.AsyncConfig {
	return audit.AsyncConfig{
		QueueSize:    a.QueueSize,
		WriteTimeout: a.WriteTimeout,
		Server:       a.Server,
		Environment:  a.Environment,
	}
}

// Retention converts to the retention policy
func (a AuditConfig) Retention() audit.RetentionPolicy {
	return audit.RetentionPolicy{
		RetentionDays:  a.RetentionDays,
		ArchiveEnabled: a.ArchiveEnabled,
	}
}

// SyncConfig configures scheduled maintenance jobs. Empty schedules
// disable the job.
type SyncConfig struct {
	Schedule          string        `yaml:"schedule"`
	IntegritySchedule string        `yaml:"integrity_schedule"`
	RetentionSchedule string        `yaml:"retention_schedule"`
	Workers           int           `yaml:"workers"`
	PageSize          int           `yaml:"page_size"`
	ItemTimeout       time.Duration `yaml:"item_timeout"`
}

// Synchronizer converts to the synchronizer config
func (s SyncConfig) Synchronizer() identitysync.Config {
	return identitysync.Config{
		Workers:     s.Workers,
		PageSize:    s.PageSize,
		ItemTimeout: s.ItemTimeout,
	}
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
	// OTelSampleRatio is the fraction of root traces exported
	OTelSampleRatio float64 `yaml:"otel_sample_ratio"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel converts to the OpenTelemetry setup config
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// Default returns the built-in configuration
func Default() *Config {
	sess := session.DefaultConfig()
	cookies := middleware.DefaultCookies()
	lock := lockout.DefaultConfig()
	limit := middleware.DefaultRateLimitConfig()
	async := audit.DefaultAsyncConfig()
	sync := identitysync.DefaultConfig()
	acct := accounts.DefaultConfig()

	host, _ := os.Hostname()

	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Database: DatabaseConfig{
			Identity:          storage.DefaultPostgresConfig(),
			ProfileDriver:     "sqlite3",
			ProfileDSN:        "file:warden-profiles.db?_busy_timeout=5000&_journal_mode=WAL",
			IdentityCacheSize: 1024,
			IdentityCacheTTL:  30 * time.Second,
		},
		Redis: storage.DefaultRedisConfig(),
		Token: TokenConfig{
			TTL: auth.DefaultTokenTTL,
		},
		Accounts: AccountsConfig{
			RequireVerified:   acct.RequireVerified,
			MinPasswordLength: acct.MinPasswordLength,
			BcryptCost:        bcrypt.DefaultCost,
		},
		Session: SessionConfig{
			MaxSessions:    sess.MaxSessions,
			TTL:            sess.SessionTTL,
			RememberTTL:    sess.RememberTTL,
			KeyPrefix:      sess.KeyPrefix,
			SessionCookie:  cookies.SessionName,
			RememberCookie: cookies.RememberName,
			SecureCookies:  true,
		},
		Lockout: LockoutConfig{
			Window:      lock.Window,
			Threshold:   lock.Threshold,
			IPThreshold: lock.IPThreshold,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: limit.RequestsPerWindow,
			Window:   limit.WindowDuration,
		},
		Audit: AuditConfig{
			QueueSize:     async.QueueSize,
			WriteTimeout:  async.WriteTimeout,
			Server:        host,
			Environment:   async.Environment,
			RetentionDays: audit.DefaultRetentionPolicy().RetentionDays,
			Archive: storage.S3Config{
				Region: "us-east-1",
			},
		},
		Sync: SyncConfig{
			Schedule:          "@every 15m",
			IntegritySchedule: "@daily",
			RetentionSchedule: "0 3 * * *",
			Workers:           sync.Workers,
			PageSize:          sync.PageSize,
			ItemTimeout:       sync.ItemTimeout,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "warden",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// LoadConfig loads the defaults, then the YAML file named by
// WARDEN_CONFIG_FILE if set, then environment overrides, and validates.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("WARDEN_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile overlays the YAML document at path. Keys absent from the file
// keep their current values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides every field that has a WARDEN_* variable set
func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("WARDEN_HOST", s.Host)
	s.Port = getEnv("WARDEN_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("WARDEN_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("WARDEN_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("WARDEN_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("WARDEN_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxBodyBytes = getEnvInt64("WARDEN_MAX_BODY_BYTES", s.MaxBodyBytes)
	s.AllowedOrigins = getEnvList("WARDEN_ALLOWED_ORIGINS", s.AllowedOrigins)
	s.TrustedProxies = getEnvList("WARDEN_TRUSTED_PROXIES", s.TrustedProxies)

	db := &c.Database
	db.Identity.PrimaryURL = getEnv("WARDEN_POSTGRES_URL", db.Identity.PrimaryURL)
	db.Identity.ReplicaURLs = getEnvList("WARDEN_POSTGRES_REPLICA_URLS", db.Identity.ReplicaURLs)
	db.Identity.MaxConns = getEnvInt("WARDEN_POSTGRES_MAX_CONNS", db.Identity.MaxConns)
	db.Identity.MinConns = getEnvInt("WARDEN_POSTGRES_MIN_CONNS", db.Identity.MinConns)
	db.Identity.Timeout = getEnvDuration("WARDEN_POSTGRES_TIMEOUT", db.Identity.Timeout)
	db.ProfileDriver = getEnv("WARDEN_PROFILE_DRIVER", db.ProfileDriver)
	db.ProfileDSN = getEnv("WARDEN_PROFILE_DSN", db.ProfileDSN)
	db.IdentityCacheSize = getEnvInt("WARDEN_IDENTITY_CACHE_SIZE", db.IdentityCacheSize)
	db.IdentityCacheTTL = getEnvDuration("WARDEN_IDENTITY_CACHE_TTL", db.IdentityCacheTTL)

	r := &c.Redis
	r.URL = getEnv("WARDEN_REDIS_URL", r.URL)
	r.Password = getEnv("WARDEN_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("WARDEN_REDIS_DB", r.DB)
	r.MaxRetries = getEnvInt("WARDEN_REDIS_MAX_RETRIES", r.MaxRetries)
	r.PoolSize = getEnvInt("WARDEN_REDIS_POOL_SIZE", r.PoolSize)

	c.Token.Secret = getEnv("WARDEN_TOKEN_SECRET", c.Token.Secret)
	c.Token.TTL = getEnvDuration("WARDEN_TOKEN_TTL", c.Token.TTL)

	a := &c.Accounts
	a.RequireVerified = getEnvBool("WARDEN_REQUIRE_VERIFIED", a.RequireVerified)
	a.MinPasswordLength = getEnvInt("WARDEN_MIN_PASSWORD_LENGTH", a.MinPasswordLength)
	a.BcryptCost = getEnvInt("WARDEN_BCRYPT_COST", a.BcryptCost)

	ss := &c.Session
	ss.MaxSessions = getEnvInt("WARDEN_SESSION_MAX", ss.MaxSessions)
	ss.TTL = getEnvDuration("WARDEN_SESSION_TTL", ss.TTL)
	ss.RememberTTL = getEnvDuration("WARDEN_REMEMBER_TTL", ss.RememberTTL)
	ss.SessionCookie = getEnv("WARDEN_SESSION_COOKIE", ss.SessionCookie)
	ss.RememberCookie = getEnv("WARDEN_REMEMBER_COOKIE", ss.RememberCookie)
	ss.SecureCookies = getEnvBool("WARDEN_SECURE_COOKIES", ss.SecureCookies)

	l := &c.Lockout
	l.Window = getEnvDuration("WARDEN_LOCKOUT_WINDOW", l.Window)
	l.Threshold = getEnvInt("WARDEN_LOCKOUT_THRESHOLD", l.Threshold)
	l.IPThreshold = getEnvInt("WARDEN_LOCKOUT_IP_THRESHOLD", l.IPThreshold)

	rl := &c.RateLimit
	rl.Enabled = getEnvBool("WARDEN_RATE_LIMIT_ENABLED", rl.Enabled)
	rl.Requests = getEnvInt("WARDEN_RATE_LIMIT_REQUESTS", rl.Requests)
	rl.Window = getEnvDuration("WARDEN_RATE_LIMIT_WINDOW", rl.Window)

	au := &c.Audit
	au.QueueSize = getEnvInt("WARDEN_AUDIT_QUEUE_SIZE", au.QueueSize)
	au.WriteTimeout = getEnvDuration("WARDEN_AUDIT_WRITE_TIMEOUT", au.WriteTimeout)
	au.Server = getEnv("WARDEN_AUDIT_SERVER", au.Server)
	au.Environment = getEnv("WARDEN_ENVIRONMENT", au.Environment)
	au.RetentionDays = getEnvInt("WARDEN_AUDIT_RETENTION_DAYS", au.RetentionDays)
	au.ArchiveEnabled = getEnvBool("WARDEN_AUDIT_ARCHIVE_ENABLED", au.ArchiveEnabled)
	au.Archive.Endpoint = getEnv("WARDEN_AUDIT_S3_ENDPOINT", au.Archive.Endpoint)
	au.Archive.Region = getEnv("WARDEN_AUDIT_S3_REGION", au.Archive.Region)
	au.Archive.Bucket = getEnv("WARDEN_AUDIT_S3_BUCKET", au.Archive.Bucket)
	au.Archive.AccessKey = getEnv("WARDEN_AUDIT_S3_ACCESS_KEY", au.Archive.AccessKey)
	au.Archive.SecretKey = getEnv("WARDEN_AUDIT_S3_SECRET_KEY", au.Archive.SecretKey)
	au.Archive.UsePathStyle = getEnvBool("WARDEN_AUDIT_S3_USE_PATH_STYLE", au.Archive.UsePathStyle)
	au.DeadLetterDir = getEnv("WARDEN_AUDIT_DEAD_LETTER_DIR", au.DeadLetterDir)

	sy := &c.Sync
	sy.Schedule = getEnv("WARDEN_SYNC_SCHEDULE", sy.Schedule)
	sy.IntegritySchedule = getEnv("WARDEN_INTEGRITY_SCHEDULE", sy.IntegritySchedule)
	sy.RetentionSchedule = getEnv("WARDEN_RETENTION_SCHEDULE", sy.RetentionSchedule)
	sy.Workers = getEnvInt("WARDEN_SYNC_WORKERS", sy.Workers)
	sy.PageSize = getEnvInt("WARDEN_SYNC_PAGE_SIZE", sy.PageSize)
	sy.ItemTimeout = getEnvDuration("WARDEN_SYNC_ITEM_TIMEOUT", sy.ItemTimeout)

	o := &c.Observability
	o.LogLevel = getEnv("WARDEN_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("WARDEN_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("WARDEN_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("WARDEN_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("WARDEN_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("WARDEN_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("WARDEN_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("WARDEN_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if _, err := c.Server.ProxyTrust(); err != nil {
		return err
	}

	if c.Database.Identity.PrimaryURL == "" {
		return fmt.Errorf("identity postgres URL is required")
	}
	switch c.Database.ProfileDriver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("invalid profile driver: %s (must be sqlite3 or postgres)", c.Database.ProfileDriver)
	}
	if c.Database.ProfileDSN == "" {
		return fmt.Errorf("profile DSN is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required")
	}

	if _, err := c.Token.Key(); err != nil {
		return err
	}

	if c.Accounts.MinPasswordLength < 1 {
		return fmt.Errorf("min password length must be positive")
	}
	if c.Accounts.BcryptCost < bcrypt.MinCost || c.Accounts.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	if c.Session.MaxSessions < 1 {
		return fmt.Errorf("session cap must be at least 1")
	}
	if c.Session.TTL <= 0 || c.Session.RememberTTL <= 0 {
		return fmt.Errorf("session and remember TTLs must be positive")
	}
	if c.Session.SessionCookie == "" || c.Session.RememberCookie == "" {
		return fmt.Errorf("cookie names are required")
	}
	if c.Session.SessionCookie == c.Session.RememberCookie {
		return fmt.Errorf("session and remember cookies must have different names")
	}

	if c.Lockout.Window <= 0 || c.Lockout.Threshold < 1 || c.Lockout.IPThreshold < 1 {
		return fmt.Errorf("lockout window and thresholds must be positive")
	}

	if c.RateLimit.Enabled && (c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate limit requests and window must be positive")
	}

	if c.Audit.QueueSize < 1 {
		return fmt.Errorf("audit queue size must be positive")
	}
	if c.Audit.RetentionDays < 1 {
		return fmt.Errorf("audit retention must be at least one day")
	}
	if c.Audit.ArchiveEnabled && c.Audit.Archive.Bucket == "" {
		return fmt.Errorf("audit archive bucket is required when archiving is enabled")
	}

	for name, schedule := range map[string]string{
		"sync":      c.Sync.Schedule,
		"integrity": c.Sync.IntegritySchedule,
		"retention": c.Sync.RetentionSchedule,
	} {
		if schedule == "" {
			continue
		}
		if _, err := cron.ParseStandard(schedule); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", name, schedule, err)
		}
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync workers must be at least 1")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var list []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
