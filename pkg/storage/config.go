package storage

import "time"

// PostgresConfig configures the PostgreSQL connection pool
type PostgresConfig struct {
	PrimaryURL  string        `yaml:"primary_url"`
	ReplicaURLs []string      `yaml:"replica_urls"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
}

// RedisConfig configures the Redis client
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
	PoolSize   int    `yaml:"pool_size"`
}

// S3Config configures the archive bucket
type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	Bucket       string `yaml:"bucket"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// DefaultPostgresConfig returns pool defaults
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		MaxConns:    20,
		MinConns:    2,
		Timeout:     10 * time.Second,
		MaxLifetime: 30 * time.Minute,
		MaxIdleTime: 5 * time.Minute,
	}
}

// DefaultRedisConfig returns client defaults
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        "redis://localhost:6379/0",
		DB:         0,
		MaxRetries: 3,
		PoolSize:   10,
	}
}
