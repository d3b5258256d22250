// Package serviceconfig provides the configuration record shared by every
// service binary (ucs, fis, ifrs, dcs): Mongo/Kafka connection settings,
// storage aliases, timing knobs, and the ambient logging/telemetry/metrics
// sections, loaded via viper from a YAML file, environment variables and
// defaults (see Config) and validated with go-playground/validator.
package serviceconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/marmos91/dittofs/internal/objectstorage"
	"github.com/marmos91/dittofs/internal/telemetry"
)

// Config is the configuration record every service's main loads.
//
// Configuration sources, highest precedence first:
//  1. Environment variables (<SERVICE>_* where SERVICE is the uppercased
//     service name, e.g. UCS_MONGO_URI), for keys that also appear in the
//     configuration file
//  2. Configuration file (YAML)
//  3. Default values
//
// Load reads no CLI flags. When no configuration file is found it returns
// the defaults without consulting the environment.
type Config struct {
	ServiceName string `mapstructure:"service_name" validate:"required"`

	Mongo MongoConfig `mapstructure:"mongo"`
	Kafka KafkaConfig `mapstructure:"kafka"`

	StorageAliases map[string]objectstorage.AliasConfig `mapstructure:"storage_aliases" validate:"required,min=1,dive"`

	DrsServerURI string `mapstructure:"drs_server_uri" validate:"required,drsuri"`
	EkssBaseURL  string `mapstructure:"ekss_base_url" validate:"required,url"`

	PresignedURLExpiresAfter time.Duration `mapstructure:"presigned_url_expires_after"`
	URLExpirationBuffer      time.Duration `mapstructure:"url_expiration_buffer"`
	OutboxCacheTimeoutDays   int           `mapstructure:"outbox_cache_timeout_days" validate:"omitempty,min=1"`
	StagingSpeedMBs          float64       `mapstructure:"staging_speed_mbs" validate:"omitempty,gt=0"`
	RetryAfterMin            time.Duration `mapstructure:"retry_after_min"`
	RetryAfterMax            time.Duration `mapstructure:"retry_after_max"`
	MigrationWaitSeconds     int           `mapstructure:"migration_wait_seconds" validate:"omitempty,min=1"`

	Crypt4GH Crypt4GHConfig `mapstructure:"crypt4gh"`

	JWKSets JWKSetConfig `mapstructure:"jwk_sets"`

	Server ServerConfig `mapstructure:"server"`

	Logging   LoggingConfig    `mapstructure:"logging"`
	Telemetry telemetry.Config `mapstructure:"telemetry"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
}

// ServerConfig configures this service's own HTTP edge and graceful
// shutdown behavior.
type ServerConfig struct {
	Addr                   string        `mapstructure:"addr" validate:"required"`
	ShutdownTimeout        time.Duration `mapstructure:"shutdown_timeout"`
	PublishPendingInterval time.Duration `mapstructure:"publish_pending_interval"`
}

// MongoConfig configures the per-service replica-set connection.
type MongoConfig struct {
	URI                       string `mapstructure:"uri" validate:"required"`
	Database                  string `mapstructure:"database" validate:"required"`
	LockCollection            string `mapstructure:"lock_collection"`
	DbVersionCollection       string `mapstructure:"db_version_collection"`
	IdempotenceCollection     string `mapstructure:"idempotence_collection"`
	PersistedEventsCollection string `mapstructure:"persisted_events_collection"`
}

// KafkaConfig configures the service's broker connection and DLQ topic.
type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers" validate:"required,min=1"`
	GroupID  string   `mapstructure:"group_id" validate:"required"`
	DLQTopic string   `mapstructure:"dlq_topic" validate:"required"`
}

// Crypt4GHConfig points at this service's own Crypt4GH server keypair,
// used by FIS to open envelopes anonymously sealed against its public key.
// Passphrase is read from file content, never taken directly from an env
// var, so it never appears in a process listing.
type Crypt4GHConfig struct {
	PublicKeyPath      string `mapstructure:"public_key_path" validate:"omitempty,file"`
	PrivateKeyPath     string `mapstructure:"private_key_path" validate:"omitempty,file"`
	PassphraseFilePath string `mapstructure:"passphrase_file_path" validate:"omitempty,file"`
}

// JWKSetConfig names the JWK set sources for the authentication
// boundaries a service exposes: one set per data hub, plus one for
// the UOS/WPS token issuer.
type JWKSetConfig struct {
	DataHubSets map[string]string `mapstructure:"data_hub_sets"`
	IssuerSet   string            `mapstructure:"issuer_set"`
}

// LoggingConfig controls structured log output, matching the shape the
// logger package itself already exposes via logger.Config.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json"`
	Output string `mapstructure:"output"`
}

// MetricsConfig controls whether this service mounts /metrics on its own
// REST router. There is no separate metrics listener or port: the
// Prometheus registry is scraped on the same addr as everything else, so
// a cmd/* main passes Metrics.Enabled straight through to its router
// constructor's metricsEnabled argument.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration for serviceName from configPath (or the
// default search path if empty), applies defaults, and validates it.
func Load(serviceName, configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, serviceName, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig(serviceName)
	if !found {
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("serviceconfig: validating default config: %w", err)
		}
		return cfg, nil
	}

	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		durationDecodeHook(),
	))); err != nil {
		return nil, fmt.Errorf("serviceconfig: unmarshaling config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("serviceconfig: validation failed: %w", err)
	}

	return cfg, nil
}

func setupViper(v *viper.Viper, serviceName, configPath string) {
	prefix := strings.ToUpper(serviceName)
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	v.AddConfigPath(defaultConfigDir(serviceName))
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("serviceconfig: reading config file: %w", err)
	}
	return true, nil
}

func defaultConfigDir(serviceName string) string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, serviceName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", serviceName)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}
