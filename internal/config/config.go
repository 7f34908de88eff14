package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/newthinker/statarb/internal/core"
	"github.com/newthinker/statarb/internal/filter"
	"github.com/spf13/viper"
)

// Strategy, pricing, cost and source names accepted in configuration.
const (
	StrategyMomentum = "momentum"
	StrategyBeta     = "beta"
	StrategySector   = "sector"

	PricingLast   = "last"
	PricingBidAsk = "bidask"

	CostLinear    = "linear"
	CostQuadratic = "quadratic"
	CostADV       = "adv"

	SourceLocalFS = "localfs"
	SourceS3      = "s3"
)

type Config struct {
	Data       DataConfig       `mapstructure:"data"`
	Backtest   BacktestConfig   `mapstructure:"backtest"`
	Regression RegressionConfig `mapstructure:"regression"`
	Results    ResultsConfig    `mapstructure:"results"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

// DataConfig locates the input datasets. Keys are relative to the archive.
type DataConfig struct {
	Source      string   `mapstructure:"source"` // "localfs" or "s3"
	Path        string   `mapstructure:"path"`   // For localfs
	S3          S3Config `mapstructure:"s3"`     // For S3
	Universe    string   `mapstructure:"universe"`
	Beta        string   `mapstructure:"beta"`
	Score       string   `mapstructure:"score"`
	SecondScore string   `mapstructure:"second_score"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// BacktestConfig holds the simulation parameters.
type BacktestConfig struct {
	Strategy       string       `mapstructure:"strategy" json:"strategy"`
	Pricing        string       `mapstructure:"pricing" json:"pricing"`
	Forming        int          `mapstructure:"forming" json:"forming"`
	Holding        int          `mapstructure:"holding" json:"holding"`
	Capital        float64      `mapstructure:"capital" json:"capital"`
	Smooth         float64      `mapstructure:"smooth" json:"smooth"`
	PeriodsPerYear int          `mapstructure:"periods_per_year" json:"periods_per_year"`
	Filter         FilterConfig `mapstructure:"filter" json:"filter"`
	IndustryFilter FilterConfig `mapstructure:"industry_filter" json:"industry_filter"`
	StockFilter    FilterConfig `mapstructure:"stock_filter" json:"stock_filter"`
	Industries     []string     `mapstructure:"industries" json:"industries"`
	Cost           CostConfig   `mapstructure:"cost" json:"cost"`
}

// FilterConfig names a score filter. Long and Short are percentiles used by
// long_short only.
type FilterConfig struct {
	Name  string  `mapstructure:"name" json:"name"`
	Long  float64 `mapstructure:"long" json:"long"`
	Short float64 `mapstructure:"short" json:"short"`
}

// Func resolves the configured filter.
func (f FilterConfig) Func() (filter.Func, error) {
	return filter.ByName(f.Name, f.Long, f.Short)
}

// CostConfig selects a transaction cost model.
type CostConfig struct {
	Model     string  `mapstructure:"model" json:"model"`
	Rate      float64 `mapstructure:"rate" json:"rate"`           // linear
	Linear    float64 `mapstructure:"linear" json:"linear"`       // quadratic
	Quadratic float64 `mapstructure:"quadratic" json:"quadratic"` // quadratic
	Min       float64 `mapstructure:"min" json:"min"`             // adv
	Max       float64 `mapstructure:"max" json:"max"`             // adv
}

// RegressionConfig drives the rolling factor regression.
type RegressionConfig struct {
	Factors  string `mapstructure:"factors"`
	Returns  string `mapstructure:"returns"`
	Output   string `mapstructure:"output"`
	RiskFree string `mapstructure:"risk_free"`
	Window   int    `mapstructure:"window"`
	MinObs   int    `mapstructure:"min_obs"`
}

type ResultsConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Path     string `mapstructure:"path"`
	Textfile string `mapstructure:"textfile"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	APIKey      string `mapstructure:"api_key"`
	JobTTLHours int    `mapstructure:"job_ttl_hours"`
	MaxJobs     int    `mapstructure:"max_jobs"`
}

// NotifyConfig lists the endpoints told about finished runs.
type NotifyConfig struct {
	Webhooks []WebhookConfig `mapstructure:"webhooks"`
}

type WebhookConfig struct {
	Name    string            `mapstructure:"name"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads configuration from file on top of Defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Data: DataConfig{
			Source:   SourceLocalFS,
			Path:     "./data",
			Universe: "universe.parquet",
		},
		Backtest: BacktestConfig{
			Strategy:       StrategyMomentum,
			Pricing:        PricingLast,
			Forming:        12,
			Holding:        3,
			Capital:        1_000_000,
			PeriodsPerYear: 12,
			Filter:         FilterConfig{Name: filter.NameLongShort, Long: 90, Short: 10},
			IndustryFilter: FilterConfig{Name: filter.NameLongRanking},
			StockFilter:    FilterConfig{Name: filter.NameEqualWeight},
			Cost:           CostConfig{Model: CostLinear, Rate: 0.001},
		},
		Regression: RegressionConfig{
			RiskFree: "RF",
			Window:   36,
			MinObs:   12,
		},
		Results: ResultsConfig{
			SQLitePath: "statarb.db",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			JobTTLHours: 1,
			MaxJobs:     100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	switch c.Data.Source {
	case SourceLocalFS:
		if c.Data.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("data.path required when source is localfs"))
		}
	case SourceS3:
		if c.Data.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("data.s3.bucket required when source is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown data source %q", c.Data.Source))
	}

	if err := c.Backtest.Validate(); err != nil {
		return err
	}
	switch c.Backtest.Strategy {
	case StrategyBeta:
		if c.Data.Beta == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("data.beta required for the beta strategy"))
		}
	case StrategySector:
		if c.Data.Score == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("data.score required for the sector strategy"))
		}
	}

	for i, w := range c.Notify.Webhooks {
		if w.URL == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("notify.webhooks[%d].url required", i))
		}
	}

	if c.Regression.Window < 1 || c.Regression.MinObs < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("regression window and min_obs must be positive, got %d/%d", c.Regression.Window, c.Regression.MinObs))
	}

	return nil
}

// Validate checks the backtest section on its own. The API applies request
// overrides to a copy of this section and validates it again.
func (b BacktestConfig) Validate() error {
	switch b.Strategy {
	case StrategyMomentum, StrategyBeta:
		if _, err := b.Filter.Func(); err != nil {
			return err
		}
	case StrategySector:
		if len(b.Industries) == 0 {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("backtest.industries required for the sector strategy"))
		}
		if _, err := b.IndustryFilter.Func(); err != nil {
			return err
		}
		if _, err := b.StockFilter.Func(); err != nil {
			return err
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown strategy %q", b.Strategy))
	}

	if b.Pricing != PricingLast && b.Pricing != PricingBidAsk {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("pricing must be %q or %q, got %q", PricingLast, PricingBidAsk, b.Pricing))
	}
	if b.Forming < 1 || b.Holding < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("forming and holding must be >= 1, got %d/%d", b.Forming, b.Holding))
	}
	if !(b.Capital > 0) {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("capital must be positive, got %v", b.Capital))
	}
	if b.Smooth < 0 || b.Smooth >= 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("smooth must be in [0, 1), got %v", b.Smooth))
	}
	if b.PeriodsPerYear < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("periods_per_year must be positive, got %d", b.PeriodsPerYear))
	}

	switch b.Cost.Model {
	case CostLinear, CostQuadratic:
	case CostADV:
		if b.Cost.Min < 0 || b.Cost.Max < b.Cost.Min {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("adv cost needs 0 <= min <= max, got %v/%v", b.Cost.Min, b.Cost.Max))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown cost model %q", b.Cost.Model))
	}
	if b.Cost.Rate < 0 || b.Cost.Linear < 0 || b.Cost.Quadratic < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("cost rates cannot be negative"))
	}

	return nil
}
