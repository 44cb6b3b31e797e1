// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/YaganovValera/optionstream/pkg/httpserver"
	"github.com/YaganovValera/optionstream/pkg/kafka"
	"github.com/YaganovValera/optionstream/pkg/logger"
	"github.com/YaganovValera/optionstream/pkg/session"
	"github.com/YaganovValera/optionstream/pkg/telemetry"
	"github.com/YaganovValera/optionstream/pkg/validator"
	"github.com/YaganovValera/optionstream/pkg/wsclient"
)

// EnvPrefix prefixes every environment override, e.g. OPTIONSTREAM_WS_URL.
const EnvPrefix = "OPTIONSTREAM"

// Config holds every setting of the forwarder.
type Config struct {
	ServiceName    string             `mapstructure:"service_name"`
	ServiceVersion string             `mapstructure:"service_version"`
	Logging        logger.SinksConfig `mapstructure:"logging"`
	WS             wsclient.Config    `mapstructure:"ws"`
	Session        session.Config     `mapstructure:"session"`
	Kafka          KafkaConfig        `mapstructure:"kafka"`
	Forward        ForwardConfig      `mapstructure:"forward"`
	Telemetry      telemetry.Config   `mapstructure:"telemetry"`
	HTTP           httpserver.Config  `mapstructure:"http"`
}

// KafkaConfig is the producer plus the topics it writes.
type KafkaConfig struct {
	Producer kafka.Config `mapstructure:",squash"`
	RawTopic string       `mapstructure:"raw_topic"`
	LogTopic string       `mapstructure:"log_topic"`
}

// ForwardConfig selects which frames and log records reach Kafka.
type ForwardConfig struct {
	// Request is sent once the raw stream is open; empty sends nothing.
	Request   string         `mapstructure:"request"`
	Validator validator.Spec `mapstructure:"validator"`
	// Timeout ends the raw stream; zero keeps it open.
	Timeout  time.Duration `mapstructure:"timeout"`
	LogLevel string        `mapstructure:"log_level"`
}

// Validate checks the fields the forwarder cannot default.
func (c *Config) Validate() error {
	var errs []string
	if c.WS.URL == "" {
		errs = append(errs, "ws.url is required")
	}
	if len(c.Kafka.Producer.Brokers) == 0 {
		errs = append(errs, "kafka.brokers is required")
	}
	if c.Kafka.RawTopic == "" {
		errs = append(errs, "kafka.raw_topic is required")
	}
	if _, err := c.Forward.Validator.Build(); err != nil {
		errs = append(errs, fmt.Sprintf("forward.validator: %v", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads defaults, then environment, then the optional file at path.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("service_name", "optionstream")
	v.SetDefault("service_version", "v0.1.0")

	v.SetDefault("logging.terminal.enabled", true)
	v.SetDefault("logging.terminal.level", "info")

	v.SetDefault("ws.url", "")
	v.SetDefault("ws.buffer_size", 256)
	v.SetDefault("ws.read_timeout", "30s")
	v.SetDefault("ws.write_timeout", "5s")

	v.SetDefault("session.buffer_size", 256)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.required_acks", "all")
	v.SetDefault("kafka.timeout", "5s")
	v.SetDefault("kafka.compression", "none")
	v.SetDefault("kafka.raw_topic", "optionstream.raw")
	v.SetDefault("kafka.log_topic", "")

	v.SetDefault("forward.log_level", "warn")
	v.SetDefault("forward.timeout", "0s")

	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.sampler_ratio", 1.0)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.shutdown_timeout", "5s")
	v.SetDefault("http.metrics_path", "/metrics")
	v.SetDefault("http.healthz_path", "/healthz")
	v.SetDefault("http.readyz_path", "/readyz")

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := Decode(v.AllSettings(), &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode maps loosely typed settings onto target with the duration, comma
// slice and string bool conversions env values need.
func Decode(input map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "mapstructure",
		Result:  target,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			stringToBoolHook,
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func stringToBoolHook(f, t reflect.Kind, data any) (any, error) {
	if f == reflect.String && t == reflect.Bool {
		return strconv.ParseBool(data.(string))
	}
	return data, nil
}

// Print writes the configuration as indented JSON.
func (c *Config) Print() (string, error) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
