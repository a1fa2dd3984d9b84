// Package config loads twoway-demo settings with viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "twoway.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. TWOWAY_DEMO_MESSAGES.
const EnvPrefix = "TWOWAY"

// LogConfig holds logging settings
type LogConfig struct {
	Level          string `json:"logLevel" mapstructure:"logLevel"`
	Backend        string `json:"logBackend" mapstructure:"logBackend"`
	Dir            string `json:"logsDir" mapstructure:"logsDir"`
	GraylogEnabled bool   `json:"graylogEnabled" mapstructure:"graylogEnabled"`
	GraylogAddress string `json:"graylogAddress" mapstructure:"graylogAddress"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled        bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName    string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout   time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	MetricInterval time.Duration `json:"metricInterval" mapstructure:"metricInterval"`
	Endpoint       string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `json:"insecure" mapstructure:"insecure"`
}

// DemoConfig holds the ping-pong run settings
type DemoConfig struct {
	Messages int `json:"messages" mapstructure:"messages"`
	Senders  int `json:"senders" mapstructure:"senders"`
}

// Load reads configuration from the JSON file in configDir and sets default
// values. A missing file leaves the defaults in place; a malformed one is an error.
func Load(configDir string) error {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logBackend", "slog")
	viper.SetDefault("logsDir", "./twowaylogs")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "twoway-demo")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "10s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", false)

	viper.SetDefault("demo.messages", 100)
	viper.SetDefault("demo.senders", 4)

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetLogConfig returns the logging configuration.
func GetLogConfig() LogConfig {
	return LogConfig{
		Level:          viper.GetString("logLevel"),
		Backend:        strings.ToLower(viper.GetString("logBackend")),
		Dir:            viper.GetString("logsDir"),
		GraylogEnabled: viper.GetBool("graylog.enabled"),
		GraylogAddress: viper.GetString("graylog.address"),
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

// GetDemoConfig returns the demo run configuration. Non-positive values fall back to 1.
func GetDemoConfig() DemoConfig {
	cfg := DemoConfig{
		Messages: viper.GetInt("demo.messages"),
		Senders:  viper.GetInt("demo.senders"),
	}
	if cfg.Messages < 1 {
		cfg.Messages = 1
	}
	if cfg.Senders < 1 {
		cfg.Senders = 1
	}
	return cfg
}

// BindFlags registers the command-line overrides on fs and binds them to their config keys.
func BindFlags(fs *pflag.FlagSet) error {
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("log-backend", "", "pair event logger (slog, zerolog)")
	fs.Int("messages", 0, "number of values sent in the ping-pong run")
	fs.Int("senders", 0, "number of goroutines sharing the sending endpoint")

	bindings := map[string]string{
		"logLevel":      "log-level",
		"logBackend":    "log-backend",
		"demo.messages": "messages",
		"demo.senders":  "senders",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("binding flag %s: %w", flag, err)
		}
	}
	return nil
}
