// Package config loads configforge settings from an optional YAML file and
// CONFIGFORGE_* environment variables. Environment values win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no path is given and CONFIGFORGE_CONFIG is unset.
const DefaultPath = "configforge.yaml"

// Assistant modes.
const (
	AssistantOpenAI = "openai"
	AssistantStatic = "static"
	AssistantOff    = "off"
)

// Config is the full runtime configuration.
type Config struct {
	Storage     StorageConfig   `yaml:"storage"`
	Blob        BlobConfig      `yaml:"blob"`
	Assistant   AssistantConfig `yaml:"assistant"`
	Log         LogConfig       `yaml:"log"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	CatalogPath string          `yaml:"catalog_path"`
}

// StorageConfig selects the snapshot store.
type StorageConfig struct {
	Driver      string `yaml:"driver"` // memory|sqlite|postgres
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// BlobConfig selects where saved configurations are exported.
type BlobConfig struct {
	Driver string   `yaml:"driver"` // fs|s3|memory
	FSRoot string   `yaml:"fs_root"`
	Prefix string   `yaml:"prefix"`
	S3     S3Config `yaml:"s3"`
}

// S3Config mirrors the s3 blob driver settings.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// AssistantConfig configures the chat completion client.
type AssistantConfig struct {
	Mode        string        `yaml:"mode"` // openai|static|off
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	// RateLimit caps requests per second; zero means unlimited.
	RateLimit float64 `yaml:"rate_limit"`
}

// LogConfig configures internal/logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text|json

	// Trace writes one JSON line per service operation to the log writer.
	Trace bool `yaml:"trace"`
}

// TelemetryConfig selects the OpenTelemetry trace exporter.
type TelemetryConfig struct {
	Exporter     string `yaml:"exporter"` // none|stdout|otlp
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Storage:   StorageConfig{Driver: "sqlite"},
		Blob:      BlobConfig{Driver: "fs", Prefix: "configurations"},
		Assistant: AssistantConfig{Mode: AssistantOpenAI, Temperature: 0.2, Timeout: 60 * time.Second},
		Log:       LogConfig{Level: "info", Format: "text"},
		HTTP:      HTTPConfig{Addr: ":8080"},
		Telemetry: TelemetryConfig{Exporter: "none"},
	}
}

// Load reads path (or CONFIGFORGE_CONFIG, or DefaultPath) over Default and
// then applies environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIGFORGE_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	str(&c.Storage.Driver, "CONFIGFORGE_STORAGE_DRIVER")
	str(&c.Storage.SQLitePath, "CONFIGFORGE_SQLITE_PATH")
	str(&c.Storage.PostgresDSN, "CONFIGFORGE_POSTGRES_DSN")
	str(&c.Blob.Driver, "CONFIGFORGE_BLOB_DRIVER")
	str(&c.Blob.FSRoot, "CONFIGFORGE_BLOB_FS_ROOT")
	str(&c.Blob.Prefix, "CONFIGFORGE_BLOB_PREFIX")
	str(&c.Blob.S3.Bucket, "CONFIGFORGE_BLOB_S3_BUCKET")
	str(&c.Blob.S3.Region, "CONFIGFORGE_BLOB_S3_REGION")
	str(&c.Blob.S3.Endpoint, "CONFIGFORGE_BLOB_S3_ENDPOINT")
	str(&c.Assistant.Mode, "CONFIGFORGE_ASSISTANT_MODE")
	str(&c.Assistant.APIKey, "CONFIGFORGE_ASSISTANT_API_KEY", "DEEPSEEK_API_KEY")
	str(&c.Assistant.BaseURL, "CONFIGFORGE_ASSISTANT_BASE_URL", "DEEPSEEK_BASE_URL")
	str(&c.Assistant.Model, "CONFIGFORGE_ASSISTANT_MODEL")
	str(&c.Log.Level, "CONFIGFORGE_LOG_LEVEL")
	str(&c.Log.Format, "CONFIGFORGE_LOG_FORMAT")
	str(&c.HTTP.Addr, "CONFIGFORGE_HTTP_ADDR")
	str(&c.CatalogPath, "CONFIGFORGE_CATALOG")
	str(&c.Telemetry.Exporter, "CONFIGFORGE_TRACE_EXPORTER")
	str(&c.Telemetry.OTLPEndpoint, "CONFIGFORGE_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")

	if v, ok := lookup("CONFIGFORGE_OTLP_INSECURE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CONFIGFORGE_OTLP_INSECURE: %w", err)
		}
		c.Telemetry.OTLPInsecure = b
	}
	if v, ok := lookup("CONFIGFORGE_ASSISTANT_RATE_LIMIT"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CONFIGFORGE_ASSISTANT_RATE_LIMIT: %w", err)
		}
		c.Assistant.RateLimit = f
	}

	if v, ok := lookup("CONFIGFORGE_BLOB_S3_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CONFIGFORGE_BLOB_S3_PATH_STYLE: %w", err)
		}
		c.Blob.S3.PathStyle = b
	}
	if v, ok := lookup("CONFIGFORGE_LOG_TRACE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CONFIGFORGE_LOG_TRACE: %w", err)
		}
		c.Log.Trace = b
	}
	if v, ok := lookup("CONFIGFORGE_ASSISTANT_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CONFIGFORGE_ASSISTANT_TIMEOUT: %w", err)
		}
		c.Assistant.Timeout = d
	}
	if v, ok := lookup("CONFIGFORGE_ASSISTANT_TEMPERATURE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("CONFIGFORGE_ASSISTANT_TEMPERATURE: %w", err)
		}
		c.Assistant.Temperature = float32(f)
	}
	return nil
}

// Validate checks enumerated fields.
func (c Config) Validate() error {
	var errs []error
	if !oneOf(c.Storage.Driver, "memory", "sqlite", "postgres") {
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Storage.Driver == "postgres" && c.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("postgres storage requires postgres_dsn"))
	}
	if !oneOf(c.Blob.Driver, "fs", "s3", "memory") {
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		errs = append(errs, errors.New("s3 blob driver requires a bucket"))
	}
	if !oneOf(c.Assistant.Mode, AssistantOpenAI, AssistantStatic, AssistantOff) {
		errs = append(errs, fmt.Errorf("unknown assistant mode %q", c.Assistant.Mode))
	}
	if c.Assistant.RateLimit < 0 {
		errs = append(errs, errors.New("assistant rate_limit must not be negative"))
	}
	if !oneOf(c.Log.Format, "text", "json") {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if !oneOf(c.Telemetry.Exporter, "none", "stdout", "otlp") {
		errs = append(errs, fmt.Errorf("unknown trace exporter %q", c.Telemetry.Exporter))
	}
	if c.Telemetry.Exporter == "otlp" && c.Telemetry.OTLPEndpoint == "" {
		errs = append(errs, errors.New("otlp trace exporter requires otlp_endpoint"))
	}
	return errors.Join(errs...)
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if strings.EqualFold(v, o) {
			return true
		}
	}
	return false
}
