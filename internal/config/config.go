package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ochanalytics/slow-onset-monitor/internal/domain"
)

// Config holds all service settings, populated from environment variables plus
// an optional YAML thresholds file.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// CheckInterval is the polling cadence of the monitor loop.
	CheckInterval time.Duration
	// ForcePublish republishes even when nothing changed.
	ForcePublish bool

	KafkaBrokers      []string
	KafkaSummaryTopic string

	HotspotsURL       string
	HapiURL           string
	HapiAppIdentifier string
	HapiPageSize      int
	FetchTimeout      time.Duration

	// Snapshot persistence: "local" writes under SnapshotDir, "blob" uses an
	// S3-compatible object store.
	SnapshotBackend string
	SnapshotDir     string
	SnapshotKey     string
	BlobEndpoint    string
	BlobAccessKey   string
	BlobSecretKey   string
	BlobBucket      string
	BlobRegion      string

	// Exposure aggregation inputs and output.
	WarningsFile    string
	PopulationFile  string
	ExposureOutFile string

	Thresholds         domain.Thresholds
	ExposureThresholds domain.ExposureThresholds
	// Countries maps feed country names to ISO3 codes; it is the target list
	// for every fetch and join.
	Countries map[string]string
}

// DefaultCountries is the monitored Eastern/Southern Africa country set.
func DefaultCountries() map[string]string {
	return map[string]string{
		"Angola":     "AGO",
		"Burundi":    "BDI",
		"Comoros":    "COM",
		"Djibouti":   "DJI",
		"Eswatini":   "SWZ",
		"Kenya":      "KEN",
		"Lesotho":    "LSO",
		"Madagascar": "MDG",
		"Malawi":     "MWI",
		"Namibia":    "NAM",
		"Rwanda":     "RWA",
		"Tanzania":   "TZA",
		"Uganda":     "UGA",
		"Zambia":     "ZMB",
		"Zimbabwe":   "ZWE",
	}
}

// Load reads configuration from environment variables, applying defaults where
// unset, then layers the optional THRESHOLDS_FILE on top.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	checkInterval, err := parseDuration("CHECK_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, err
	}
	pageSize, err := parseInt("HAPI_PAGE_SIZE", 10000)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		CheckInterval:   checkInterval,
		ForcePublish:    os.Getenv("FORCE_PUBLISH") == "true",

		KafkaBrokers:      parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSummaryTopic: envOrDefault("KAFKA_SUMMARY_TOPIC", "country-risk-summaries"),

		HotspotsURL:       envOrDefault("HOTSPOTS_URL", "https://agricultural-production-hotspots.ec.europa.eu/files/hotspots_ts.zip"),
		HapiURL:           envOrDefault("HAPI_URL", "https://hapi.humdata.org/api/v2/food-security-nutrition-poverty/food-security"),
		HapiAppIdentifier: os.Getenv("HAPI_APP_IDENTIFIER"),
		HapiPageSize:      pageSize,
		FetchTimeout:      fetchTimeout,

		SnapshotBackend: envOrDefault("SNAPSHOT_BACKEND", "local"),
		SnapshotDir:     envOrDefault("SNAPSHOT_DIR", "data/monitoring"),
		SnapshotKey:     envOrDefault("SNAPSHOT_KEY", "summary.csv"),
		BlobEndpoint:    os.Getenv("BLOB_ENDPOINT"),
		BlobAccessKey:   os.Getenv("BLOB_ACCESS_KEY"),
		BlobSecretKey:   os.Getenv("BLOB_SECRET_KEY"),
		BlobBucket:      envOrDefault("BLOB_BUCKET", "slow-onset-monitoring"),
		BlobRegion:      os.Getenv("BLOB_REGION"),

		WarningsFile:    envOrDefault("WARNINGS_FILE", "data/raw/warnings_l2_ts.csv"),
		PopulationFile:  envOrDefault("POPULATION_FILE", "data/raw/worldpop_l2.csv"),
		ExposureOutFile: envOrDefault("EXPOSURE_OUT_FILE", "monthly_exposure.csv"),

		Thresholds:         domain.DefaultThresholds(),
		ExposureThresholds: domain.DefaultExposureThresholds(),
		Countries:          DefaultCountries(),
	}

	if path := os.Getenv("THRESHOLDS_FILE"); path != "" {
		if err := applyThresholdsFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if c.KafkaSummaryTopic == "" {
		return errors.New("KAFKA_SUMMARY_TOPIC is required")
	}
	if c.CheckInterval <= 0 {
		return errors.New("CHECK_INTERVAL must be positive")
	}
	switch c.SnapshotBackend {
	case "local":
		if c.SnapshotDir == "" {
			return errors.New("SNAPSHOT_DIR is required for the local backend")
		}
	case "blob":
		if c.BlobEndpoint == "" || c.BlobAccessKey == "" || c.BlobSecretKey == "" {
			return errors.New("BLOB_ENDPOINT, BLOB_ACCESS_KEY, and BLOB_SECRET_KEY are required for the blob backend")
		}
	default:
		return fmt.Errorf("SNAPSHOT_BACKEND must be local or blob, got %q", c.SnapshotBackend)
	}
	if len(c.Countries) == 0 {
		return errors.New("country list must not be empty")
	}
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	if err := c.ExposureThresholds.Validate(); err != nil {
		return fmt.Errorf("exposure thresholds: %w", err)
	}
	return nil
}

// thresholdsFile is the YAML override schema. Every field is optional; unset
// fields keep their defaults so a file can tune a single threshold.
type thresholdsFile struct {
	Thresholds struct {
		HighConsecutive                  *int     `yaml:"highConsecutive"`
		VeryHighSeverePopulation4        *float64 `yaml:"veryHighSeverePopulation4"`
		VeryHighDeterioratingProportion3 *float64 `yaml:"veryHighDeterioratingProportion3"`
		VeryHighDeterioratingIncrease4   *float64 `yaml:"veryHighDeterioratingIncrease4"`
		HighSeverePopulation4            *float64 `yaml:"highSeverePopulation4"`
		HighDeterioratingProportion3     *float64 `yaml:"highDeterioratingProportion3"`
		HighDeterioratingIncrease3       *float64 `yaml:"highDeterioratingIncrease3"`
		MediumProportion3                *float64 `yaml:"mediumProportion3"`
		MediumPopulation4                *float64 `yaml:"mediumPopulation4"`
		PopulationComparability          *float64 `yaml:"populationComparability"`
	} `yaml:"thresholds"`
	Exposure struct {
		Crop  *[3]float64 `yaml:"crop"`
		Range *[3]float64 `yaml:"range"`
	} `yaml:"exposure"`
	Countries map[string]string `yaml:"countries"`
}

func applyThresholdsFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read thresholds file: %w", err)
	}
	var file thresholdsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse thresholds file %s: %w", path, err)
	}

	t := &cfg.Thresholds
	overrides := file.Thresholds
	if overrides.HighConsecutive != nil {
		t.HighConsecutive = *overrides.HighConsecutive
	}
	setIf(&t.VeryHighSeverePopulation4, overrides.VeryHighSeverePopulation4)
	setIf(&t.VeryHighDeterioratingProportion3, overrides.VeryHighDeterioratingProportion3)
	setIf(&t.VeryHighDeterioratingIncrease4, overrides.VeryHighDeterioratingIncrease4)
	setIf(&t.HighSeverePopulation4, overrides.HighSeverePopulation4)
	setIf(&t.HighDeterioratingProportion3, overrides.HighDeterioratingProportion3)
	setIf(&t.HighDeterioratingIncrease3, overrides.HighDeterioratingIncrease3)
	setIf(&t.MediumProportion3, overrides.MediumProportion3)
	setIf(&t.MediumPopulation4, overrides.MediumPopulation4)
	setIf(&t.PopulationComparability, overrides.PopulationComparability)

	if file.Exposure.Crop != nil {
		cfg.ExposureThresholds.Crop = *file.Exposure.Crop
	}
	if file.Exposure.Range != nil {
		cfg.ExposureThresholds.Range = *file.Exposure.Range
	}
	if len(file.Countries) > 0 {
		cfg.Countries = file.Countries
	}
	return nil
}

func setIf(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}
