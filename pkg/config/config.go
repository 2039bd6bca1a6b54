package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Record backends
const (
	BackendFirestore = "firestore"
	BackendMongo     = "mongo"
)

// Trigger modes
const (
	ModeHTTP  = "http"
	ModeWatch = "watch"
)

type Config struct {
	Port                    string
	Env                     string
	LogLevel                string
	FirebaseCredentialsPath string
	RecordBackend           string
	TriggerMode             string
	NotificationsCollection string
	MongoURI                string
	MongoDatabase           string
	PostgresConnStr         string
	TriggerJWTSecret        string
	DuplicateGuard          bool
	WatchBackfill           bool
	FCMDryRun               bool
}

// LoadOptions carries values given on the command line.
type LoadOptions struct {
	EnvFile string
	Mode    string
}

// Load reads the configuration from the environment, after loading the .env file if
// there is one. Variables already set in the environment win over the file.
func Load(opts LoadOptions) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		if opts.EnvFile != "" {
			return nil, fmt.Errorf("error loading %s: %w", opts.EnvFile, err)
		}
		logrus.Info("No .env file found, assuming environment variables are set.")
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("RECORD_BACKEND", BackendFirestore)
	v.SetDefault("TRIGGER_MODE", ModeHTTP)
	v.SetDefault("NOTIFICATIONS_COLLECTION", "notifications")
	v.SetDefault("MONGO_DATABASE", "orders")
	v.SetDefault("DUPLICATE_GUARD", true)
	v.SetDefault("WATCH_BACKFILL", false)
	v.SetDefault("FCM_DRY_RUN", false)

	cfg := &Config{
		Port:                    v.GetString("PORT"),
		Env:                     v.GetString("ENV"),
		LogLevel:                v.GetString("LOG_LEVEL"),
		FirebaseCredentialsPath: v.GetString("FIREBASE_CREDENTIALS_PATH"),
		RecordBackend:           v.GetString("RECORD_BACKEND"),
		TriggerMode:             v.GetString("TRIGGER_MODE"),
		NotificationsCollection: v.GetString("NOTIFICATIONS_COLLECTION"),
		MongoURI:                v.GetString("MONGO_URI"),
		MongoDatabase:           v.GetString("MONGO_DATABASE"),
		PostgresConnStr:         v.GetString("POSTGRES_CONN_STR"),
		TriggerJWTSecret:        v.GetString("TRIGGER_JWT_SECRET"),
		DuplicateGuard:          v.GetBool("DUPLICATE_GUARD"),
		WatchBackfill:           v.GetBool("WATCH_BACKFILL"),
		FCMDryRun:               v.GetBool("FCM_DRY_RUN"),
	}
	if opts.Mode != "" {
		cfg.TriggerMode = opts.Mode
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the settings fit together.
func (c *Config) Validate() error {
	switch c.RecordBackend {
	case BackendFirestore:
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI must be set when RECORD_BACKEND is %s", BackendMongo)
		}
	default:
		return fmt.Errorf("unknown RECORD_BACKEND %q", c.RecordBackend)
	}

	switch c.TriggerMode {
	case ModeHTTP:
		if c.TriggerJWTSecret == "" {
			return fmt.Errorf("TRIGGER_JWT_SECRET must be set in %s mode", ModeHTTP)
		}
	case ModeWatch:
	default:
		return fmt.Errorf("unknown trigger mode %q", c.TriggerMode)
	}

	if c.NotificationsCollection == "" {
		return fmt.Errorf("NOTIFICATIONS_COLLECTION must not be empty")
	}
	return nil
}

// DeliveryLogEnabled reports whether a Postgres database was configured for the delivery log.
func (c *Config) DeliveryLogEnabled() bool {
	return c.PostgresConnStr != ""
}

func loadEnvFile(path string) error {
	if path == "" {
		return godotenv.Load()
	}
	return godotenv.Load(path)
}
