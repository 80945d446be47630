// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aristath/riskaversion/internal/modules/artifacts"
	"github.com/aristath/riskaversion/internal/modules/measures"
	"github.com/aristath/riskaversion/internal/modules/riskaversion"
	"github.com/joho/godotenv"
)

// Config holds the pipeline configuration. It is built once by Load and passed
// explicitly to every component.
type Config struct {
	RawDir       string // Directory holding one raw price file per asset
	OutputDir    string // Directory receiving the tabular artifacts
	DatabasePath string // SQLite run history

	QMin          float64
	QMax          float64
	SolverMethod  string
	Tolerance     float64
	MaxCondition  float64
	WarnCondition float64

	MissingDatePolicy string
	NormalizeWeights  bool
	LoadWorkers       int

	LogLevel  string
	LogPretty bool

	Publish *PublishConfig
}

// PublishConfig holds the S3-compatible object storage target for artifacts.
// Publishing is disabled when Bucket is empty.
type PublishConfig struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // Custom endpoint for R2/MinIO, empty for AWS
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether artifacts should be uploaded.
func (p *PublishConfig) Enabled() bool {
	return p != nil && p.Bucket != ""
}

// ToPublisherConfig converts config.PublishConfig to artifacts.S3Config
func (p *PublishConfig) ToPublisherConfig() artifacts.S3Config {
	return artifacts.S3Config{
		Bucket:          p.Bucket,
		Prefix:          p.Prefix,
		Region:          p.Region,
		Endpoint:        p.Endpoint,
		AccessKeyID:     p.AccessKeyID,
		SecretAccessKey: p.SecretAccessKey,
	}
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	outputDir, err := filepath.Abs(getEnv("RA_OUTPUT_DIR", filepath.Join("data", "clean")))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory path: %w", err)
	}

	rawDir, err := filepath.Abs(getEnv("RA_RAW_DIR", filepath.Join("data", "raw")))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve raw directory path: %w", err)
	}

	cfg := &Config{
		RawDir:            rawDir,
		OutputDir:         outputDir,
		DatabasePath:      getEnv("RA_DATABASE_PATH", filepath.Join(outputDir, "runs.db")),
		QMin:              getEnvAsFloat("RA_Q_MIN", riskaversion.DefaultQMin),
		QMax:              getEnvAsFloat("RA_Q_MAX", riskaversion.DefaultQMax),
		SolverMethod:      getEnv("RA_SOLVER_METHOD", string(riskaversion.MethodClosedForm)),
		Tolerance:         getEnvAsFloat("RA_TOLERANCE", riskaversion.DefaultTolerance),
		MaxCondition:      getEnvAsFloat("RA_MAX_CONDITION", riskaversion.DefaultMaxCondition),
		WarnCondition:     getEnvAsFloat("RA_WARN_CONDITION", riskaversion.DefaultWarnCondition),
		MissingDatePolicy: getEnv("RA_MISSING_DATE_POLICY", string(measures.PolicyIntersect)),
		NormalizeWeights:  getEnvAsBool("RA_NORMALIZE_WEIGHTS", false),
		LoadWorkers:       getEnvAsInt("RA_LOAD_WORKERS", 8),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogPretty:         getEnvAsBool("LOG_PRETTY", true),
		Publish: &PublishConfig{
			Bucket:          getEnv("RA_S3_BUCKET", ""),
			Prefix:          getEnv("RA_S3_PREFIX", "riskaversion"),
			Region:          getEnv("RA_S3_REGION", "auto"),
			Endpoint:        getEnv("RA_S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("RA_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("RA_S3_SECRET_ACCESS_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	if c.QMin < 0 {
		return fmt.Errorf("q lower bound must be non-negative, got %g", c.QMin)
	}
	if c.QMin >= c.QMax {
		return fmt.Errorf("q bounds must satisfy min < max, got [%g, %g]", c.QMin, c.QMax)
	}
	if !riskaversion.Method(c.SolverMethod).Valid() {
		return fmt.Errorf("unknown solver method: %s", c.SolverMethod)
	}
	if c.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %g", c.Tolerance)
	}
	if c.WarnCondition <= 0 || c.MaxCondition <= c.WarnCondition {
		return fmt.Errorf("condition thresholds must satisfy 0 < warn < max, got warn=%g max=%g", c.WarnCondition, c.MaxCondition)
	}
	if !measures.MissingDatePolicy(c.MissingDatePolicy).Valid() {
		return fmt.Errorf("unknown missing date policy: %s", c.MissingDatePolicy)
	}
	if c.LoadWorkers <= 0 {
		return fmt.Errorf("load workers must be positive, got %d", c.LoadWorkers)
	}
	if c.Publish.Enabled() && c.Publish.Endpoint != "" && (c.Publish.AccessKeyID == "" || c.Publish.SecretAccessKey == "") {
		return fmt.Errorf("custom S3 endpoint requires access key id and secret")
	}
	return nil
}

// ToSolverConfig converts the solver settings to riskaversion.Config
func (c *Config) ToSolverConfig() riskaversion.Config {
	return riskaversion.Config{
		QMin:          c.QMin,
		QMax:          c.QMax,
		Method:        riskaversion.Method(c.SolverMethod),
		Tolerance:     c.Tolerance,
		MaxCondition:  c.MaxCondition,
		WarnCondition: c.WarnCondition,
	}
}

// ToMeasureOptions converts the measure settings to measures.Options
func (c *Config) ToMeasureOptions() measures.Options {
	return measures.Options{
		MissingDates:     measures.MissingDatePolicy(c.MissingDatePolicy),
		NormalizeWeights: c.NormalizeWeights,
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
