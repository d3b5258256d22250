package serviceconfig

import (
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/dittofs/internal/telemetry"
)

// drsURIPattern is the shape every drs_server_uri must match: a drs://
// authority ending in a trailing slash.
var drsURIPattern = regexp.MustCompile(`^drs://.+/$`)

// DefaultConfig returns the baseline configuration for serviceName before
// any file or environment overrides are applied.
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Mongo: MongoConfig{
			Database:                  serviceName,
			LockCollection:            "db_version_lock",
			DbVersionCollection:       "db_version",
			IdempotenceCollection:     "idempotence",
			PersistedEventsCollection: serviceName + "PersistedEvents",
		},
		Kafka: KafkaConfig{
			GroupID:  serviceName,
			DLQTopic: serviceName + "-dlq",
		},
		PresignedURLExpiresAfter: 30 * time.Minute,
		URLExpirationBuffer:      5 * time.Minute,
		OutboxCacheTimeoutDays:   7,
		StagingSpeedMBs:          100,
		RetryAfterMin:            5 * time.Second,
		RetryAfterMax:            5 * time.Minute,
		MigrationWaitSeconds:     5,
		Server: ServerConfig{
			Addr:                   ":8080",
			ShutdownTimeout:        15 * time.Second,
			PublishPendingInterval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		Telemetry: telemetry.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks cfg against its struct tags plus the custom drsuri rule.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.RegisterValidation("drsuri", validateDRSURI); err != nil {
		return err
	}
	return v.Struct(cfg)
}

func validateDRSURI(fl validator.FieldLevel) bool {
	return drsURIPattern.MatchString(fl.Field().String())
}
