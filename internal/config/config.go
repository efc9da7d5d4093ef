package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-etl/internal/models"
	"github.com/kjstillabower/weather-etl/internal/validation"
)

const (
	BackendGCS = "gcs"
	BackendS3  = "s3"
)

// Config holds pipeline configuration loaded from YAML, secrets and env.
// It is passed explicitly to every component; nothing reads it globally.
type Config struct {
	EnvName string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	Units             string
	Location          models.Location

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	LocalPath string

	SinkBackend string // "gcs" or "s3"
	BucketName  string
	ObjectKey   string
	ArchiveRaw  bool
	RawPrefix   string
	S3Region    string

	CredentialsPath string
	ProjectID       string
	DatasetID       string
	TableID         string
	DatasetLocation string

	RunTimeout time.Duration

	ServerPort      string
	RequestTimeout  time.Duration
	RateLimitRPS    int
	RateLimitBurst  int
	ShutdownTimeout time.Duration

	ScheduleInterval time.Duration

	SentryDSN string
}

type fileConfig struct {
	WeatherAPI struct {
		URL      string `yaml:"url"`
		Timeout  string `yaml:"timeout"`
		Units    string `yaml:"units"`
		Location struct {
			City    string   `yaml:"city"`
			Country string   `yaml:"country"`
			Lat     *float64 `yaml:"lat"`
			Lon     *float64 `yaml:"lon"`
		} `yaml:"location"`
	} `yaml:"weather_api"`

	Fetch struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
	} `yaml:"fetch"`

	Local struct {
		Path string `yaml:"path"`
	} `yaml:"local"`

	Sink struct {
		Backend    string `yaml:"backend"`
		BucketName string `yaml:"bucket_name"`
		ObjectKey  string `yaml:"object_key"`
		ArchiveRaw bool   `yaml:"archive_raw"`
		RawPrefix  string `yaml:"raw_prefix"`
		S3Region   string `yaml:"s3_region"`
	} `yaml:"sink"`

	Warehouse struct {
		ProjectID string `yaml:"project_id"`
		DatasetID string `yaml:"dataset_id"`
		TableID   string `yaml:"table_id"`
		Location  string `yaml:"location"`
	} `yaml:"warehouse"`

	GCP struct {
		CredentialsPath string `yaml:"credentials_path"`
	} `yaml:"gcp"`

	Run struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"run"`

	Server struct {
		Port            string `yaml:"port"`
		RequestTimeout  string `yaml:"request_timeout"`
		RateLimitRPS    int    `yaml:"rate_limit_rps"`
		RateLimitBurst  int    `yaml:"rate_limit_burst"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Schedule struct {
		Interval string `yaml:"interval"`
	} `yaml:"schedule"`

	Observability struct {
		SentryDSN string `yaml:"sentry_dsn"`
	} `yaml:"observability"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// envOverrides are applied after the YAML files. Empty values leave the file value in place.
type envOverrides struct {
	WeatherAPIKey   string `envconfig:"WEATHER_API_KEY"`
	CredentialsPath string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
	ProjectID       string `envconfig:"GCP_PROJECT_ID"`
	DatasetID       string `envconfig:"BQ_DATASET_ID"`
	TableID         string `envconfig:"BQ_TABLE_ID"`
	BucketName      string `envconfig:"BUCKET_NAME"`
	SinkBackend     string `envconfig:"SINK_BACKEND"`
	LocalPath       string `envconfig:"LOCAL_PATH"`
	SentryDSN       string `envconfig:"SENTRY_DSN"`
	Port            string `envconfig:"PORT"`
}

// Load reads .env (optional), config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml,
// then applies environment overrides. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom is Load rooted at dir instead of the working directory.
func LoadFrom(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	var ov envOverrides
	if err := envconfig.Process("", &ov); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{EnvName: env}

	cfg.WeatherAPIKey = ov.WeatherAPIKey
	if cfg.WeatherAPIKey == "" {
		secretsPath := filepath.Join(dir, "config", "secrets.yaml")
		secretsData, err := os.ReadFile(secretsPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read secrets file: %w", err)
			}
		} else {
			var sec secretsFile
			if err := yaml.Unmarshal(secretsData, &sec); err != nil {
				return nil, fmt.Errorf("parse secrets file: %w", err)
			}
			cfg.WeatherAPIKey = sec.WeatherAPIKey
		}
	}
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}

	cfg.WeatherAPIURL = fc.WeatherAPI.URL
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = "https://api.openweathermap.org/data/2.5/weather"
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)
	cfg.Units = strings.TrimSpace(strings.ToLower(fc.WeatherAPI.Units))
	if cfg.Units == "" {
		cfg.Units = "metric"
	}
	cfg.Location = models.Location{
		City:    strings.TrimSpace(fc.WeatherAPI.Location.City),
		Country: strings.TrimSpace(fc.WeatherAPI.Location.Country),
		Lat:     fc.WeatherAPI.Location.Lat,
		Lon:     fc.WeatherAPI.Location.Lon,
	}

	cfg.RetryAttempts = fc.Fetch.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	cfg.RetryBaseDelay = parseDuration(fc.Fetch.RetryBaseDelay, 500*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Fetch.RetryMaxDelay, 5*time.Second)

	cfg.LocalPath = firstNonEmpty(ov.LocalPath, fc.Local.Path, filepath.Join("data", "current_weather.csv"))

	cfg.SinkBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(ov.SinkBackend, fc.Sink.Backend, BackendGCS)))
	cfg.BucketName = strings.TrimSpace(firstNonEmpty(ov.BucketName, fc.Sink.BucketName))
	cfg.ObjectKey = strings.TrimPrefix(firstNonEmpty(fc.Sink.ObjectKey, "weather/current_weather.csv"), "/")
	cfg.ArchiveRaw = fc.Sink.ArchiveRaw
	cfg.RawPrefix = strings.Trim(firstNonEmpty(fc.Sink.RawPrefix, "current_weather"), "/")
	cfg.S3Region = firstNonEmpty(fc.Sink.S3Region, "us-east-1")

	cfg.CredentialsPath = firstNonEmpty(ov.CredentialsPath, fc.GCP.CredentialsPath)
	cfg.ProjectID = strings.TrimSpace(firstNonEmpty(ov.ProjectID, fc.Warehouse.ProjectID))
	cfg.DatasetID = strings.TrimSpace(firstNonEmpty(ov.DatasetID, fc.Warehouse.DatasetID))
	cfg.TableID = strings.TrimSpace(firstNonEmpty(ov.TableID, fc.Warehouse.TableID, "current_weather"))
	cfg.DatasetLocation = firstNonEmpty(fc.Warehouse.Location, "europe-west8")

	cfg.RunTimeout = parseDuration(fc.Run.Timeout, 2*time.Minute)

	cfg.ServerPort = firstNonEmpty(ov.Port, fc.Server.Port, "8080")
	cfg.RequestTimeout = parseDuration(fc.Server.RequestTimeout, cfg.RunTimeout+5*time.Second)
	cfg.RateLimitRPS = fc.Server.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 1
	}
	cfg.RateLimitBurst = fc.Server.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 2
	}
	cfg.ShutdownTimeout = parseDuration(fc.Server.ShutdownTimeout, 30*time.Second)

	cfg.ScheduleInterval = parseDurationOrZero(fc.Schedule.Interval, 0)

	cfg.SentryDSN = firstNonEmpty(ov.SentryDSN, fc.Observability.SentryDSN)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// RequestTimeout is raised above RunTimeout so a triggered run is never cut short by the HTTP layer.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.RunTimeout {
		cfg.RequestTimeout = cfg.RunTimeout + time.Second
	}
	if cfg.ScheduleInterval < 0 {
		return fmt.Errorf("schedule.interval must not be negative")
	}

	if cfg.Location.HasCoordinates() {
		if err := validation.ValidateCoordinates(*cfg.Location.Lat, *cfg.Location.Lon); err != nil {
			return fmt.Errorf("weather_api.location: %w", err)
		}
	} else {
		if cfg.Location.Lat != nil || cfg.Location.Lon != nil {
			return fmt.Errorf("weather_api.location: lat and lon must be set together")
		}
		city, err := validation.ValidateLocation(cfg.Location.City, 2, 100)
		if err != nil {
			return fmt.Errorf("weather_api.location.city: %w", err)
		}
		cfg.Location.City = city
	}

	switch cfg.Units {
	case "metric", "imperial", "standard":
	default:
		return fmt.Errorf("weather_api.units must be metric, imperial or standard, got %q", cfg.Units)
	}

	switch cfg.SinkBackend {
	case BackendGCS, BackendS3:
		// valid
	default:
		return fmt.Errorf("sink.backend must be gcs or s3, got %q", cfg.SinkBackend)
	}

	if err := validation.ValidateObjectKey(cfg.ObjectKey); err != nil {
		return fmt.Errorf("sink.object_key: %w", err)
	}
	if cfg.ArchiveRaw {
		if err := validation.ValidateObjectKey(cfg.RawPrefix); err != nil {
			return fmt.Errorf("sink.raw_prefix: %w", err)
		}
	}

	var missing []string
	if cfg.BucketName == "" {
		missing = append(missing, "sink.bucket_name")
	}
	if cfg.ProjectID == "" {
		missing = append(missing, "warehouse.project_id")
	}
	if cfg.DatasetID == "" {
		missing = append(missing, "warehouse.dataset_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if cfg.CredentialsPath != "" {
		if _, err := os.Stat(cfg.CredentialsPath); err != nil {
			return fmt.Errorf("gcp.credentials_path: %w", err)
		}
	}
	return nil
}
