package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Connection *connectionConfig
	Client     *clientConfig
	Database   *dbConfig
	Events     *eventsConfig
}

type connectionConfig struct {
	InstanceURL string `envconfig:"BULK_INSTANCE_URL" default:""`
	AccessToken string `envconfig:"BULK_ACCESS_TOKEN" default:""`
	APIVersion  string `envconfig:"BULK_API_VERSION" default:"53.0"`
}

type clientConfig struct {
	LogLevel          string        `envconfig:"BULK_LOG_LEVEL" default:"info"`
	RequestTimeout    time.Duration `envconfig:"BULK_REQUEST_TIMEOUT" default:"5m"`
	RateLimit         float64       `envconfig:"BULK_RATE_LIMIT" default:"10"`
	RateBurst         int           `envconfig:"BULK_RATE_BURST" default:"5"`
	IngestConcurrency int           `envconfig:"BULK_INGEST_CONCURRENCY" default:"1"`
	ChunkSizeLimit    int           `envconfig:"BULK_CHUNK_SIZE_LIMIT" default:"100000000"`
}

type dbConfig struct {
	Type     string `envconfig:"BULK_DB_TYPE" default:"sqlite"`
	Hostname string `envconfig:"BULK_DB_HOST" default:"localhost"`
	Port     string `envconfig:"BULK_DB_PORT" default:"5432"`
	Name     string `envconfig:"BULK_DB_NAME" default:"bulkctl.db"`
	User     string `envconfig:"BULK_DB_USER" default:"admin"`
	Password string `envconfig:"BULK_DB_PASS" default:"adminpass"`
}

type eventsConfig struct {
	Enabled bool   `envconfig:"BULK_EVENTS_ENABLED" default:"false"`
	Topic   string `envconfig:"BULK_EVENTS_TOPIC" default:"bulk.jobs"`

	// File receives events as JSON lines. Events are logged when empty.
	File string `envconfig:"BULK_EVENTS_FILE" default:""`
}

// NewDefault returns the configuration read from the environment.
func NewDefault() (*Config, error) {
	c := new(Config)
	if err := envconfig.Process("", c); err != nil {
		return nil, err
	}
	return c, nil
}
