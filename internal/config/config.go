package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/validator"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment" json:"environment"`
	LogLevel    string `mapstructure:"logLevel" json:"logLevel"`
	Server      struct {
		Port int `mapstructure:"port" json:"port" validate:"gt=0,lte=65535"`
	} `mapstructure:"server" json:"server"`
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	NATS     NATSConfig     `mapstructure:"nats" json:"nats"`
	Models   ModelsConfig   `mapstructure:"models" json:"models"`
	ETL      ETLConfig      `mapstructure:"etl" json:"etl"`
	Training TrainingConfig `mapstructure:"training" json:"training"`
	Metrics  struct {
		Enabled bool `mapstructure:"enabled" json:"enabled"`
	} `mapstructure:"metrics" json:"metrics"`
}

// DatabaseConfig holds the postgres connection settings
type DatabaseConfig struct {
	PostgresDSN         string        `mapstructure:"postgresDSN" json:"postgresDSN" validate:"required"`
	PostgresAutoMigrate bool          `mapstructure:"postgresAutoMigrate" json:"postgresAutoMigrate"`
	MaxOpenConns        int           `mapstructure:"maxOpenConns" json:"maxOpenConns" validate:"gte=0"`
	MaxIdleConns        int           `mapstructure:"maxIdleConns" json:"maxIdleConns" validate:"gte=0"`
	ConnMaxLifetime     time.Duration `mapstructure:"connMaxLifetime" json:"connMaxLifetime"`
	ConnectTimeout      time.Duration `mapstructure:"connectTimeout" json:"connectTimeout"` // total time spent retrying the first connection
	InsertBatchSize     int           `mapstructure:"insertBatchSize" json:"insertBatchSize" validate:"gt=0"`
}

// NATSConfig holds the broker used for training-run tracking and pipeline events
type NATSConfig struct {
	Enabled         bool          `mapstructure:"enabled" json:"enabled"`
	URL             string        `mapstructure:"url" json:"url" validate:"required_if=Enabled true"`
	TrackingStream  string        `mapstructure:"trackingStream" json:"trackingStream"`
	TrackingSubject string        `mapstructure:"trackingSubject" json:"trackingSubject"` // training runs
	EventsSubject   string        `mapstructure:"eventsSubject" json:"eventsSubject"`     // features.loaded
	MaxAgeDays      int           `mapstructure:"maxAgeDays" json:"maxAgeDays"`
	BreakerTimeout  time.Duration `mapstructure:"breakerTimeout" json:"breakerTimeout"`
	BreakerFailures uint32        `mapstructure:"breakerFailures" json:"breakerFailures"`
}

// ModelsConfig tells where trained artifacts live and which churn algorithm to train
type ModelsConfig struct {
	Dir            string `mapstructure:"dir" json:"dir" validate:"required"`
	ChurnModelType string `mapstructure:"churnModelType" json:"churnModelType" validate:"oneof=random_forest xgboost logistic_regression gradient_boosting neural_network"`
	ChurnFile      string `mapstructure:"churnFile" json:"churnFile" validate:"required"`
	CLVFile        string `mapstructure:"clvFile" json:"clvFile" validate:"required"`
}

// ETLConfig controls the scheduled daily pipeline run
type ETLConfig struct {
	Enabled    bool          `mapstructure:"enabled" json:"enabled"`
	Interval   time.Duration `mapstructure:"interval" json:"interval" validate:"required_if=Enabled true"`
	RunTimeout time.Duration `mapstructure:"runTimeout" json:"runTimeout"`
}

// TrainingConfig holds knobs shared by every training call
type TrainingConfig struct {
	TestSize float64 `mapstructure:"testSize" json:"testSize" validate:"gt=0,lt=1"`
	Workers  int     `mapstructure:"workers" json:"workers" validate:"gte=1"` // parallel tree fits / CV folds
	Seed     int64   `mapstructure:"seed" json:"seed"`
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	// Create new viper instance
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.enabled", true)

	v.SetDefault("database.postgresAutoMigrate", false)
	v.SetDefault("database.maxOpenConns", 10)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", 30*time.Minute)
	v.SetDefault("database.connectTimeout", time.Minute)
	v.SetDefault("database.insertBatchSize", 500)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.trackingStream", "churn_analytics")
	v.SetDefault("nats.trackingSubject", "v1.analytics.training.run")
	v.SetDefault("nats.eventsSubject", "v1.analytics.features.loaded")
	v.SetDefault("nats.maxAgeDays", 30)
	v.SetDefault("nats.breakerTimeout", 30*time.Second)
	v.SetDefault("nats.breakerFailures", 5)

	v.SetDefault("models.dir", "models")
	v.SetDefault("models.churnModelType", "random_forest")
	v.SetDefault("models.churnFile", "churn_model.bin")
	v.SetDefault("models.clvFile", "clv_model.bin")

	v.SetDefault("etl.enabled", false)
	v.SetDefault("etl.interval", 24*time.Hour)
	v.SetDefault("etl.runTimeout", 30*time.Minute)

	v.SetDefault("training.testSize", 0.2)
	v.SetDefault("training.workers", 4)
	v.SetDefault("training.seed", 42)

	// Config file settings
	v.SetConfigName("default") // name of config file (without extension)
	v.SetConfigType("yaml")    // REQUIRED if the config file does not have the extension in the name

	// Add lookup paths
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.churn-analytics-platform")
	v.AddConfigPath("/etc/churn-analytics-platform")

	// Try to read from config file
	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map environment variables to config fields
	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		v.Set("nats.url", url)
		v.Set("nats.enabled", true)
	}
	if dir := os.Getenv("MODEL_DIR"); dir != "" {
		v.Set("models.dir", dir)
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := validator.Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		// Get the field tag value (mapstructure)
		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		// Build the env var path
		path := append(parts, tag)
		key := strings.Join(path, ".")

		// If it's a struct (but not a duration), recursively bind its fields
		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		// Bind the env var
		_ = v.BindEnv(key)
	}
}
