// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/SyedDaiam9101/style-transfer-service/internal/inference"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "STYLE_SERVICE"

// Config holds all configuration for the service
type Config struct {
	// Server configuration
	Port               int      `mapstructure:"port"`
	HTTPPort           int      `mapstructure:"http_port"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`

	// HTTP callers may name http(s) image URLs only when this is set
	AllowRemoteSources bool `mapstructure:"allow_remote_sources"`

	// Model configuration
	Model              string        `mapstructure:"model"`
	ONNXLibrary        string        `mapstructure:"onnx_library"`
	ExecutionProviders []string      `mapstructure:"execution_providers"`
	IntraOpThreads     int           `mapstructure:"intra_op_threads"`
	DeviceID           int           `mapstructure:"device_id"`
	ImageSize          int           `mapstructure:"image_size"`
	EvaluateTimeout    time.Duration `mapstructure:"evaluate_timeout"`
	SerializeEvaluate  bool          `mapstructure:"serialize_evaluate"`
	MaxImageBytes      int64         `mapstructure:"max_image_bytes"`
	MaxImagePixels     int64         `mapstructure:"max_image_pixels"`

	// Result cache; an empty address disables it
	Redis    string        `mapstructure:"redis"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// OpenTelemetry configuration
	OTELEnabled  bool   `mapstructure:"otel_enabled"`
	OTELEndpoint string `mapstructure:"otel_endpoint"`

	// Feature flags
	UseMockInference bool `mapstructure:"use_mock_inference"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 50051)
	v.SetDefault("http_port", 9100)
	v.SetDefault("cors_allowed_origins", []string{})
	v.SetDefault("allow_remote_sources", false)
	v.SetDefault("model", "models/nst_model.onnx")
	v.SetDefault("onnx_library", "")
	v.SetDefault("execution_providers", []string{inference.ProviderCUDA, inference.ProviderCPU})
	v.SetDefault("intra_op_threads", 0)
	v.SetDefault("device_id", 0)
	v.SetDefault("image_size", 256)
	v.SetDefault("evaluate_timeout", "0s")
	v.SetDefault("serialize_evaluate", false)
	v.SetDefault("max_image_bytes", 10<<20)
	v.SetDefault("max_image_pixels", 25_000_000)
	v.SetDefault("redis", "")
	v.SetDefault("cache_ttl", "10m")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("use_mock_inference", false)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// OTEL standard env var also enables tracing
	v.BindEnv("otel_endpoint", EnvPrefix+"_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		v.SetDefault("otel_enabled", true)
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"port":             "port",
	"http-port":        "http_port",
	"cors-origins":     "cors_allowed_origins",
	"allow-remote":     "allow_remote_sources",
	"model":            "model",
	"onnx-library":     "onnx_library",
	"providers":        "execution_providers",
	"image-size":       "image_size",
	"evaluate-timeout": "evaluate_timeout",
	"redis":            "redis",
	"log-level":        "log_level",
	"log-format":       "log_format",
	"mock":             "use_mock_inference",
}

// Load loads configuration from flags, environment variables, .env and an optional config file.
// Priority (highest to lowest): flags > env vars > config file > defaults.
// configFile may be empty, in which case config.yaml is searched in the usual places.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	// A missing .env is the normal case
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/style-transfer-service/")
		v.AddConfigPath("$HOME/.style-transfer-service")

		// Read config file if present (ignore error if not found)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTPPort)
	}
	if c.Port == c.HTTPPort {
		return fmt.Errorf("port and http_port must be different")
	}
	if c.Model == "" && !c.UseMockInference {
		return fmt.Errorf("model path is required when not using mock inference")
	}
	if c.ImageSize <= 0 {
		return fmt.Errorf("invalid image size: %d", c.ImageSize)
	}
	if c.EvaluateTimeout < 0 {
		return fmt.Errorf("evaluate_timeout must not be negative")
	}
	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("invalid max_image_bytes: %d", c.MaxImageBytes)
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("invalid max_image_pixels: %d", c.MaxImagePixels)
	}
	for _, p := range c.ExecutionProviders {
		switch p {
		case inference.ProviderCUDA, inference.ProviderCPU:
		default:
			return fmt.Errorf("unknown execution provider: %q", p)
		}
	}
	return nil
}

// InferenceOptions converts the model settings into loader options.
func (c *Config) InferenceOptions() inference.Options {
	return inference.Options{
		ModelPath:      c.Model,
		LibraryPath:    c.ONNXLibrary,
		Providers:      c.ExecutionProviders,
		IntraOpThreads: c.IntraOpThreads,
		DeviceID:       c.DeviceID,
	}
}
