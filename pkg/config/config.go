package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/adhocore/gronx"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backends
const (
	BackendBolt   = "bolt"
	BackendPebble = "pebble"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "BURROW_"

// Config is the full runtime configuration
type Config struct {
	DataDir    string           `yaml:"data_dir"`
	Backend    string           `yaml:"backend"`
	Log        LogConfig        `yaml:"log"`
	API        APIConfig        `yaml:"api"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Registry   RegistryConfig   `yaml:"registry"`
	Projector  ProjectorConfig  `yaml:"projector"`
	Notices    NoticesConfig    `yaml:"notices"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Search     SearchConfig     `yaml:"search"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type APIConfig struct {
	Addr        string    `yaml:"addr"`
	MaxBodySize SizeBytes `yaml:"max_body_size"`
	ReadOnly    bool      `yaml:"read_only"`
}

// EncryptionConfig holds the object encryption key. KeyHex takes
// precedence over Secret, which is stretched into a key.
type EncryptionConfig struct {
	Secret string `yaml:"secret"`
	KeyHex string `yaml:"key_hex"`
}

type RegistryConfig struct {
	MaxConcurrentCreations int      `yaml:"max_concurrent_creations"`
	SettleInterval         Duration `yaml:"settle_interval"`
	DDLRate                float64  `yaml:"ddl_rate"`
	DDLBurst               int      `yaml:"ddl_burst"`
}

type ProjectorConfig struct {
	BatchSize         int      `yaml:"batch_size"`
	Concurrency       int      `yaml:"concurrency"`
	QueueSize         int      `yaml:"queue_size"`
	PendingRetryDelay Duration `yaml:"pending_retry_delay"`
	RedeliveryDelay   Duration `yaml:"redelivery_delay"`
	ScanPageSize      int      `yaml:"scan_page_size"`
	TaskTTL           Duration `yaml:"task_ttl"`
	AppendAttempts    int      `yaml:"append_attempts"`
}

type NoticesConfig struct {
	Enabled   bool `yaml:"enabled"`
	QueueSize int  `yaml:"queue_size"`
}

type ReconcilerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

type SearchConfig struct {
	Enabled bool `yaml:"enabled"`
}

type MetricsConfig struct {
	CollectInterval Duration `yaml:"collect_interval"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DataDir: "./data",
		Backend: BackendBolt,
		Log:     LogConfig{Level: "info"},
		API: APIConfig{
			Addr:        "127.0.0.1:8080",
			MaxBodySize: 1 << 20,
		},
		Registry: RegistryConfig{
			MaxConcurrentCreations: 4,
			SettleInterval:         Duration(100 * time.Millisecond),
			DDLRate:                20,
			DDLBurst:               5,
		},
		Projector: ProjectorConfig{
			BatchSize:         100,
			Concurrency:       8,
			QueueSize:         1024,
			PendingRetryDelay: Duration(500 * time.Millisecond),
			RedeliveryDelay:   Duration(5 * time.Second),
			ScanPageSize:      500,
			AppendAttempts:    3,
		},
		Notices:    NoticesConfig{QueueSize: 256},
		Reconciler: ReconcilerConfig{Enabled: true, Schedule: "*/5 * * * *"},
		Search:     SearchConfig{Enabled: true},
		Metrics:    MetricsConfig{CollectInterval: Duration(15 * time.Second)},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when empty or absent), then the dotenv file envFile, then
// BURROW_* environment variables.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if envFile != "" {
		// Variables already set in the environment win over the file
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	integer := func(name string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = Duration(d)
		}
	}

	str("DATA_DIR", &c.DataDir)
	str("BACKEND", &c.Backend)
	str("LOG_LEVEL", &c.Log.Level)
	boolean("LOG_JSON", &c.Log.JSON)
	str("API_ADDR", &c.API.Addr)
	if v, ok := os.LookupEnv(EnvPrefix + "API_MAX_BODY_SIZE"); ok {
		n, err := parseSize(v)
		if err != nil {
			errs = append(errs, err)
		} else {
			c.API.MaxBodySize = SizeBytes(n)
		}
	}
	boolean("API_READ_ONLY", &c.API.ReadOnly)
	str("ENCRYPTION_SECRET", &c.Encryption.Secret)
	str("ENCRYPTION_KEY_HEX", &c.Encryption.KeyHex)
	integer("REGISTRY_MAX_CONCURRENT_CREATIONS", &c.Registry.MaxConcurrentCreations)
	duration("REGISTRY_SETTLE_INTERVAL", &c.Registry.SettleInterval)
	integer("PROJECTOR_BATCH_SIZE", &c.Projector.BatchSize)
	integer("PROJECTOR_CONCURRENCY", &c.Projector.Concurrency)
	duration("PROJECTOR_REDELIVERY_DELAY", &c.Projector.RedeliveryDelay)
	duration("PROJECTOR_TASK_TTL", &c.Projector.TaskTTL)
	boolean("NOTICES_ENABLED", &c.Notices.Enabled)
	boolean("RECONCILER_ENABLED", &c.Reconciler.Enabled)
	str("RECONCILER_SCHEDULE", &c.Reconciler.Schedule)
	boolean("SEARCH_ENABLED", &c.Search.Enabled)

	return errors.Join(errs...)
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is empty")
	}
	switch c.Backend {
	case BackendBolt, BackendPebble:
	default:
		return fmt.Errorf("unknown backend %q: want %s or %s", c.Backend, BackendBolt, BackendPebble)
	}
	if c.Encryption.Secret == "" && c.Encryption.KeyHex == "" {
		return fmt.Errorf("encryption key missing: set encryption.secret, encryption.key_hex or %sENCRYPTION_SECRET", EnvPrefix)
	}
	if c.Encryption.KeyHex != "" {
		key, err := hex.DecodeString(c.Encryption.KeyHex)
		if err != nil {
			return fmt.Errorf("invalid encryption.key_hex: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("encryption.key_hex must encode 32 bytes, got %d", len(key))
		}
	}
	if c.Registry.MaxConcurrentCreations <= 0 {
		return fmt.Errorf("registry.max_concurrent_creations must be positive")
	}
	if c.Projector.BatchSize <= 0 {
		return fmt.Errorf("projector.batch_size must be positive")
	}
	if c.Projector.Concurrency <= 0 {
		return fmt.Errorf("projector.concurrency must be positive")
	}
	if c.Projector.AppendAttempts <= 0 {
		return fmt.Errorf("projector.append_attempts must be positive")
	}
	if c.Reconciler.Enabled && !gronx.New().IsValid(c.Reconciler.Schedule) {
		return fmt.Errorf("invalid reconciler.schedule %q: not a cron expression", c.Reconciler.Schedule)
	}
	return nil
}

// Cipher builds the object cipher from the encryption settings
func (c *Config) Cipher() (*security.Cipher, error) {
	if c.Encryption.KeyHex != "" {
		key, err := hex.DecodeString(c.Encryption.KeyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid encryption.key_hex: %w", err)
		}
		return security.NewCipher(key)
	}
	return security.NewCipherFromPassword(c.Encryption.Secret)
}
