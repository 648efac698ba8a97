package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"sol-fee-audit/internal/limiter"
	"sol-fee-audit/internal/logging"
	"sol-fee-audit/internal/rpc"
)

// EnvPrefix prefixes every environment override, e.g. FEEAUDIT_RPC_ENDPOINT.
const EnvPrefix = "FEEAUDIT"

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	RPC      RPCConfig      `mapstructure:"rpc"`
	Limiter  LimiterConfig  `mapstructure:"limiter"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Output   OutputConfig   `mapstructure:"output"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name string `mapstructure:"name"`
}

// RPCConfig covers Solana node access.
type RPCConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PageSize       int           `mapstructure:"page_size"`
	Commitment     string        `mapstructure:"commitment"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// LimiterConfig holds request spacing and retry constants.
type LimiterConfig struct {
	MinSpacing          time.Duration `mapstructure:"min_spacing"`
	ThrottleBaseDelay   time.Duration `mapstructure:"throttle_base_delay"`
	ThrottleMaxDelay    time.Duration `mapstructure:"throttle_max_delay"`
	MaxThrottleRetries  int           `mapstructure:"max_throttle_retries"`
	TransportBaseDelay  time.Duration `mapstructure:"transport_base_delay"`
	MaxTransportRetries int           `mapstructure:"max_transport_retries"`
}

// Policy converts the section into a limiter policy.
func (c LimiterConfig) Policy() limiter.Policy {
	return limiter.Policy{
		MinSpacing:          c.MinSpacing,
		ThrottleBaseDelay:   c.ThrottleBaseDelay,
		ThrottleMaxDelay:    c.ThrottleMaxDelay,
		MaxThrottleRetries:  c.MaxThrottleRetries,
		TransportBaseDelay:  c.TransportBaseDelay,
		MaxTransportRetries: c.MaxTransportRetries,
	}
}

// PipelineConfig governs fetch concurrency.
type PipelineConfig struct {
	Workers int `mapstructure:"workers"`
}

// OutputConfig sets report rendering and exports.
type OutputConfig struct {
	Format   string `mapstructure:"format"`
	CSVPath  string `mapstructure:"csv_path"`
	PNGPath  string `mapstructure:"png_path"`
	Progress bool   `mapstructure:"progress"`
}

// MetricsConfig sets the textfile-collector export.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("feeaudit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "feeaudit")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("rpc.endpoint", rpc.DefaultEndpoint)
	v.SetDefault("rpc.request_timeout", "15s")
	v.SetDefault("rpc.page_size", 100)
	v.SetDefault("rpc.commitment", "confirmed")
	v.SetDefault("rpc.user_agent", "feeaudit/1.0")

	v.SetDefault("limiter.min_spacing", limiter.DefaultMinSpacing.String())
	v.SetDefault("limiter.throttle_base_delay", limiter.DefaultThrottleBaseDelay.String())
	v.SetDefault("limiter.throttle_max_delay", limiter.DefaultThrottleMaxDelay.String())
	v.SetDefault("limiter.max_throttle_retries", limiter.DefaultMaxThrottleRetries)
	v.SetDefault("limiter.transport_base_delay", limiter.DefaultTransportBaseDelay.String())
	v.SetDefault("limiter.max_transport_retries", limiter.DefaultMaxTransportRetries)

	v.SetDefault("pipeline.workers", 5)

	v.SetDefault("output.format", "text")
	v.SetDefault("output.csv_path", "")
	v.SetDefault("output.png_path", "")
	v.SetDefault("output.progress", false)

	v.SetDefault("metrics.textfile_path", "")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if err := rpc.ValidateEndpoint(c.RPC.Endpoint); err != nil {
		return fmt.Errorf("rpc.endpoint: %w", err)
	}
	if c.RPC.RequestTimeout <= 0 {
		return fmt.Errorf("rpc.request_timeout must be greater than zero")
	}
	if c.RPC.PageSize < 1 || c.RPC.PageSize > rpc.MaxPageSize {
		return fmt.Errorf("rpc.page_size must be between 1 and %d", rpc.MaxPageSize)
	}
	switch c.RPC.Commitment {
	case "confirmed", "finalized":
	default:
		return fmt.Errorf("rpc.commitment %q must be confirmed or finalized", c.RPC.Commitment)
	}
	if err := c.Limiter.Policy().Validate(); err != nil {
		return fmt.Errorf("limiter: %w", err)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1")
	}
	switch strings.ToLower(c.Output.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("output.format %q must be text or json", c.Output.Format)
	}
	return nil
}
