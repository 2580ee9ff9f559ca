package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all pipeline settings. Values come from schoolcrime.yaml when
// present, overridden by SCHOOLCRIME_* environment variables. Socrata
// credentials are read separately from the environment (see Credentials).
type Config struct {
	DataDir string `koanf:"data_dir" validate:"required"`
	DBPath  string `koanf:"db_path" validate:"required"`

	Socrata struct {
		Host       string `koanf:"host" validate:"required"`
		Resource   string `koanf:"resource" validate:"required"`
		BatchSize  int    `koanf:"batch_size" validate:"gt=0"`
		TimeoutSec int    `koanf:"timeout_sec" validate:"gt=0"`
	} `koanf:"socrata"`

	// FinalYear is the first academic year not covered by the boundary
	// series. Computed closures at or past it are discarded so schools that
	// are still open are not flagged merely because the data ends.
	FinalYear int `koanf:"final_year" validate:"gte=2000"`

	// Accept-or-review thresholds for fuzzy matching, on the 0-100 ratio
	// scale. A score >= threshold is accepted; below goes to review.
	NameThreshold    float64 `koanf:"name_threshold" validate:"gte=0,lte=100"`
	AddressThreshold float64 `koanf:"address_threshold" validate:"gte=0,lte=100"`
}

// Defaults returns the baseline configuration before file/env overrides.
func Defaults() *Config {
	cfg := &Config{}
	cfg.DataDir = "data"
	cfg.DBPath = "data/schoolcrime.db"
	cfg.Socrata.Host = "data.cityofchicago.org"
	cfg.Socrata.Resource = "ijzp-q8t2"
	cfg.Socrata.BatchSize = 100000
	cfg.Socrata.TimeoutSec = 240
	cfg.FinalYear = 2019
	cfg.NameThreshold = 80
	cfg.AddressThreshold = 90
	return cfg
}

// Load reads configuration from the optional yaml file at path, then applies
// SCHOOLCRIME_* environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	LoadEnv()

	cfg := Defaults()
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	// SCHOOLCRIME_SOCRATA_BATCH_SIZE -> socrata.batch_size,
	// SCHOOLCRIME_NAME_THRESHOLD -> name_threshold.
	err := k.Load(env.Provider("SCHOOLCRIME_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "SCHOOLCRIME_"))
		if strings.HasPrefix(key, "socrata_") {
			return strings.Replace(key, "_", ".", 1)
		}
		return key
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Credentials holds the Socrata account supplied out-of-band.
type Credentials struct {
	AppToken string
	Username string
	Password string
}

// LoadCredentials reads Socrata credentials from the environment. All three
// may be empty for anonymous (throttled) access.
func LoadCredentials() Credentials {
	return Credentials{
		AppToken: os.Getenv("SOCRATA_APP_TOKEN"),
		Username: os.Getenv("SOCRATA_USERNAME"),
		Password: os.Getenv("SOCRATA_PASSWORD"),
	}
}

// LoadEnv loads variables from a .env file in the current or parent
// directories. Already-set variables are never overridden.
func LoadEnv() {
	for _, envPath := range []string{".env", "../.env", "../../.env"} {
		if _, err := os.Stat(envPath); err == nil {
			godotenv.Load(envPath)
			break
		}
	}
}

// GetEnv gets an environment variable with a default.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt gets an integer environment variable with a default.
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
