// Package config reads downxnat settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config holds every setting the commands need. Command-line flags are
// applied on top of it.
type Config struct {
	XNATURL            string        `env:"XNAT_URL" envDefault:"https://central.xnat.org"`
	InsecureSkipVerify bool          `env:"XNAT_INSECURE_SKIP_VERIFY" envDefault:"true"`
	Username           string        `env:"XNAT_USERNAME"`
	Timeout            time.Duration `env:"XNAT_TIMEOUT" envDefault:"0s"`
	KeyringService     string        `env:"DOWNXNAT_KEYRING_SERVICE" envDefault:"OASIS"`

	Minio MinioConfig
	Kafka KafkaConfig

	DatabaseURL string `env:"DATABASE_URL"`
	MetricsFile string `env:"METRICS_FILE"`
}

// MinioConfig configures the object storage mirror.
type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	UseSSL    bool   `env:"MINIO_USE_SSL"`
	Bucket    string `env:"MINIO_BUCKET"`
}

// Enabled reports whether a mirror endpoint is configured.
func (m MinioConfig) Enabled() bool { return m.Endpoint != "" }

// KafkaConfig configures download requests and completion events.
type KafkaConfig struct {
	Brokers      []string `env:"KAFKA_BROKERS" envSeparator:","`
	RequestTopic string   `env:"KAFKA_REQUEST_TOPIC"`
	EventTopic   string   `env:"KAFKA_EVENT_TOPIC"`
	GroupID      string   `env:"KAFKA_GROUP_ID" envDefault:"downxnat"`
}

// Load reads the given .env files (".env" when none are given) and parses
// the environment. A missing default .env is not an error; a missing file
// that was named explicitly is.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
		log.Debug("No .env file found, assuming environment variables are set directly.")
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// ValidateMirror checks the settings needed to mirror into object storage.
func (c *Config) ValidateMirror() error {
	if !c.Minio.Enabled() {
		return nil
	}
	var missing []string
	if c.Minio.AccessKey == "" {
		missing = append(missing, "MINIO_ACCESS_KEY")
	}
	if c.Minio.SecretKey == "" {
		missing = append(missing, "MINIO_SECRET_KEY")
	}
	if c.Minio.Bucket == "" {
		missing = append(missing, "MINIO_BUCKET")
	}
	return missingError(missing)
}

// ValidateConsumer checks the settings needed by the consume command.
func (c *Config) ValidateConsumer() error {
	var missing []string
	if len(c.Kafka.Brokers) == 0 {
		missing = append(missing, "KAFKA_BROKERS")
	}
	if c.Kafka.RequestTopic == "" {
		missing = append(missing, "KAFKA_REQUEST_TOPIC")
	}
	if c.Kafka.GroupID == "" {
		missing = append(missing, "KAFKA_GROUP_ID")
	}
	return missingError(missing)
}

func missingError(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
}
