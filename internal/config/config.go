// Package config provides configuration loading and validation for Vigil.
// Supports YAML files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vigil-io/vigil/internal/stream"
)

// Config holds all configuration for a Vigil daemon.
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Recorder      RecorderConfig      `yaml:"recorder"`
	Retention     RetentionConfig     `yaml:"retention"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Events        EventsConfig        `yaml:"events"`
	Observability ObservabilityConfig `yaml:"observability"`
	Streams       []stream.Spec       `yaml:"streams"`
}

type StorageConfig struct {
	// Root is the destination directory all segment files live under.
	Root string `yaml:"root" env:"VIGIL_STORAGE_ROOT"`

	// Container is the default output format for streams that do not set
	// their own.
	Container string `yaml:"container" env:"VIGIL_STORAGE_CONTAINER"`
}

type RecorderConfig struct {
	// Binary is the encoder executable name or path.
	Binary string `yaml:"binary" env:"VIGIL_RECORDER_BINARY"`

	// GraceSeconds is added to a segment's duration to form the
	// supervision timeout.
	GraceSeconds int64 `yaml:"graceSeconds" env:"VIGIL_RECORDER_GRACE_SECONDS"`

	// StopTimeoutMs is how long a stopped process gets to exit before it
	// is force-killed.
	StopTimeoutMs int64 `yaml:"stopTimeoutMs" env:"VIGIL_RECORDER_STOP_TIMEOUT_MS"`
}

type RetentionConfig struct {
	// SweepIntervalMs is the periodic sweep interval. Zero disables the
	// periodic worker; sweeps then run only after completed segments.
	SweepIntervalMs int64 `yaml:"sweepIntervalMs" env:"VIGIL_RETENTION_SWEEP_INTERVAL_MS"`

	// MaxDeleteAttempts bounds deletion retries per file.
	MaxDeleteAttempts int `yaml:"maxDeleteAttempts" env:"VIGIL_RETENTION_MAX_DELETE_ATTEMPTS"`
}

type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled" env:"VIGIL_ARCHIVE_ENABLED"`
	Endpoint        string `yaml:"endpoint" env:"VIGIL_S3_ENDPOINT"`
	Bucket          string `yaml:"bucket" env:"VIGIL_S3_BUCKET"`
	Region          string `yaml:"region" env:"VIGIL_S3_REGION"`
	AccessKey       string `yaml:"accessKey" env:"VIGIL_S3_ACCESS_KEY"`
	SecretKey       string `yaml:"secretKey" env:"VIGIL_S3_SECRET_KEY"`
	UsePathStyle    bool   `yaml:"usePathStyle" env:"VIGIL_S3_PATH_STYLE"`
	KeyPrefix       string `yaml:"keyPrefix" env:"VIGIL_S3_KEY_PREFIX"`
	QueueSize       int    `yaml:"queueSize" env:"VIGIL_ARCHIVE_QUEUE_SIZE"`
	UploadTimeoutMs int64  `yaml:"uploadTimeoutMs" env:"VIGIL_ARCHIVE_UPLOAD_TIMEOUT_MS"`
}

type EventsConfig struct {
	// JournalPath enables the local NDJSON journal when non-empty.
	JournalPath         string `yaml:"journalPath" env:"VIGIL_EVENTS_JOURNAL_PATH"`
	JournalMaxSizeBytes int64  `yaml:"journalMaxSizeBytes" env:"VIGIL_EVENTS_JOURNAL_MAX_SIZE"`
	JournalKeep         int    `yaml:"journalKeep" env:"VIGIL_EVENTS_JOURNAL_KEEP"`

	// KafkaEnabled ships events to Kafka.
	KafkaEnabled    bool     `yaml:"kafkaEnabled" env:"VIGIL_EVENTS_KAFKA_ENABLED"`
	KafkaBrokers    []string `yaml:"kafkaBrokers" env:"VIGIL_EVENTS_KAFKA_BROKERS"`
	KafkaTopic      string   `yaml:"kafkaTopic" env:"VIGIL_EVENTS_KAFKA_TOPIC"`
	EnsureTopic     bool     `yaml:"ensureTopic" env:"VIGIL_EVENTS_ENSURE_TOPIC"`
	TopicPartitions int32    `yaml:"topicPartitions" env:"VIGIL_EVENTS_TOPIC_PARTITIONS"`
}

type ObservabilityConfig struct {
	ListenAddr string `yaml:"listenAddr" env:"VIGIL_LISTEN_ADDR"`
	LogLevel   string `yaml:"logLevel" env:"VIGIL_LOG_LEVEL"`
	LogFormat  string `yaml:"logFormat" env:"VIGIL_LOG_FORMAT"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Root:      "/var/lib/vigil",
			Container: "mp4",
		},
		Recorder: RecorderConfig{
			Binary:        "ffmpeg",
			GraceSeconds:  30,
			StopTimeoutMs: 3000,
		},
		Retention: RetentionConfig{
			SweepIntervalMs:   60000, // 1 minute
			MaxDeleteAttempts: 5,
		},
		Archive: ArchiveConfig{
			Region:          "us-east-1",
			QueueSize:       128,
			UploadTimeoutMs: 300000, // 5 minutes
		},
		Events: EventsConfig{
			JournalMaxSizeBytes: 16 * 1024 * 1024, // 16MB
			JournalKeep:         5,
			KafkaTopic:          "vigil.events",
			TopicPartitions:     1,
		},
		Observability: ObservabilityConfig{
			ListenAddr: ":9090",
			LogLevel:   "info",
			LogFormat:  "json",
		},
	}
}

// Load reads configuration from the path in VIGIL_CONFIG, falling back to
// defaults plus environment overrides when it is unset.
func Load() (*Config, error) {
	path := os.Getenv("VIGIL_CONFIG")
	if path == "" {
		cfg := Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath reads a YAML configuration file, layering it over defaults
// and applying environment overrides on top.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate checks the configuration for structural problems. Stream specs
// are validated through catalog construction.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Root) == "" {
		return errors.New("config: storage.root is required")
	}
	if strings.TrimSpace(c.Recorder.Binary) == "" {
		return errors.New("config: recorder.binary is required")
	}
	if c.Archive.Enabled && strings.TrimSpace(c.Archive.Bucket) == "" {
		return errors.New("config: archive.bucket is required when archive is enabled")
	}
	if c.Events.KafkaEnabled && len(c.Events.KafkaBrokers) == 0 {
		return errors.New("config: events.kafkaBrokers is required when kafka is enabled")
	}
	if _, err := c.Catalog(); err != nil {
		return err
	}
	return nil
}

// Catalog builds the validated stream catalog from the configured specs.
func (c *Config) Catalog() (*stream.Catalog, error) {
	return stream.NewCatalog(c.Streams)
}

// applyEnvOverrides walks the config struct and overwrites any field whose
// `env` variable is set. Slices of strings are comma-separated.
func applyEnvOverrides(cfg *Config) {
	applyEnvToStruct(reflect.ValueOf(cfg).Elem())
}

func applyEnvToStruct(v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() == reflect.Struct && t.Field(i).Tag.Get("env") == "" {
			applyEnvToStruct(field)
			continue
		}

		key := t.Field(i).Tag.Get("env")
		if key == "" {
			continue
		}
		raw, ok := os.LookupEnv(key)
		if !ok || raw == "" {
			continue
		}
		setFromString(field, raw)
	}
}

func setFromString(field reflect.Value, raw string) {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int32, reflect.Int64:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			field.SetInt(n)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(raw, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if trimmed := strings.TrimSpace(p); trimmed != "" {
					out = append(out, trimmed)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}
}
