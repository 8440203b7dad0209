// Package config loads Parameters.yaml, applies defaults and ROTATOR_*
// environment overrides, and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/rotator/internal/application/pipeline"
	"github.com/sawpanic/rotator/internal/backtest/rebalance"
	"github.com/sawpanic/rotator/internal/data"
	"github.com/sawpanic/rotator/internal/domain/indicators"
	"github.com/sawpanic/rotator/internal/errs"
	"github.com/sawpanic/rotator/internal/market"
	"github.com/sawpanic/rotator/internal/score/normalize"
	"github.com/sawpanic/rotator/internal/score/portfolio"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "Parameters.yaml"

// EnvPrefix prefixes every environment override, e.g. ROTATOR_TOP_N.
const EnvPrefix = "ROTATOR"

// Allocation models.
const (
	ModelComposite      = "composite"
	ModelTrailingReturn = "trailing-return"
)

// Config represents the complete rotator configuration
type Config struct {
	InitialCash         decimal.Decimal    `yaml:"InitialCash" envconfig:"INITIAL_CASH"`
	AllocationMethod    string             `yaml:"AllocationMethod" envconfig:"ALLOCATION_METHOD" validate:"oneof=equal score-proportional volatility-inverse score volatility"`
	AllocationModel     string             `yaml:"AllocationModel" envconfig:"ALLOCATION_MODEL" validate:"oneof=composite trailing-return"`
	Tickers             []string           `yaml:"Tickers" envconfig:"TICKERS" validate:"dive,required"`
	IndicatorParameters indicators.Params  `yaml:"IndicatorParameters" envconfig:"INDICATORS"`
	IndicatorWeights    map[string]float64 `yaml:"IndicatorWeights,omitempty" envconfig:"INDICATOR_WEIGHTS"`
	MomentumLookbacks   []int              `yaml:"MomentumLookbacks" envconfig:"MOMENTUM_LOOKBACKS" validate:"min=1,dive,gt=0"`
	MomentumWeight      float64            `yaml:"MomentumWeight" envconfig:"MOMENTUM_WEIGHT" validate:"gte=0"`
	LookbackWeights     map[string]float64 `yaml:"LookbackWeights,omitempty" envconfig:"LOOKBACK_WEIGHTS"`

	RebalanceIntervalMonths int    `yaml:"RebalanceIntervalMonths" envconfig:"REBALANCE_INTERVAL_MONTHS" validate:"gte=0"`
	TrainingEndDate         string `yaml:"TrainingEndDate,omitempty" envconfig:"TRAINING_END_DATE" validate:"omitempty,datetime=2006-01-02"`
	HistoryStart            string `yaml:"HistoryStart" envconfig:"HISTORY_START" validate:"datetime=2006-01-02"`
	BacktestStart           string `yaml:"BacktestStart" envconfig:"BACKTEST_START" validate:"datetime=2006-01-02"`
	BacktestEnd             string `yaml:"BacktestEnd" envconfig:"BACKTEST_END" validate:"datetime=2006-01-02"`

	TopN               int     `yaml:"TopN" envconfig:"TOP_N" validate:"gte=0"`
	TopFraction        float64 `yaml:"TopFraction" envconfig:"TOP_FRACTION" validate:"gt=0,lte=1"`
	MissingValueMethod string  `yaml:"MissingValueMethod" envconfig:"MISSING_VALUE_METHOD" validate:"oneof=drop ffill zero"`

	CacheDir string         `yaml:"CacheDir" envconfig:"CACHE_DIR" validate:"required"`
	Redis    RedisConfig    `yaml:"Redis" envconfig:"REDIS"`
	Database DatabaseConfig `yaml:"Database" envconfig:"DATABASE"`
	Provider ProviderConfig `yaml:"Provider" envconfig:"PROVIDER"`
	Export   ExportConfig   `yaml:"Export" envconfig:"EXPORT"`
}

// RedisConfig enables the shared price cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"Addr,omitempty" envconfig:"ADDR"`
	Password string        `yaml:"Password,omitempty" envconfig:"PASSWORD"`
	DB       int           `yaml:"DB" envconfig:"DB" validate:"gte=0"`
	TTL      time.Duration `yaml:"TTL" envconfig:"TTL" validate:"gte=0"`
}

// DatabaseConfig selects the run store.
type DatabaseConfig struct {
	Enabled bool   `yaml:"Enabled" envconfig:"ENABLED"`
	Driver  string `yaml:"Driver" envconfig:"DRIVER" validate:"oneof=postgres sqlite3"`
	DSN     string `yaml:"DSN,omitempty" envconfig:"DSN" validate:"required_if=Enabled true"`
}

// ProviderConfig tunes the Yahoo chart client.
type ProviderConfig struct {
	BaseURL string        `yaml:"BaseURL" envconfig:"BASE_URL" validate:"url"`
	RPS     float64       `yaml:"RPS" envconfig:"RPS" validate:"gt=0"`
	Burst   int           `yaml:"Burst" envconfig:"BURST" validate:"gte=1"`
	Timeout time.Duration `yaml:"Timeout" envconfig:"TIMEOUT" validate:"gt=0"`
}

// ExportConfig locates backtest and ranking artifacts.
type ExportConfig struct {
	Dir string `yaml:"Dir" envconfig:"DIR" validate:"required"`
}

// Default returns the documented defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every zero-valued key.
func (c *Config) ApplyDefaults() {
	if c.InitialCash.IsZero() {
		c.InitialCash = decimal.NewFromInt(10000)
	}
	if c.AllocationMethod == "" {
		c.AllocationMethod = string(portfolio.Equal)
	}
	if c.AllocationModel == "" {
		c.AllocationModel = ModelComposite
	}

	def := indicators.DefaultParams()
	p := &c.IndicatorParameters
	setInt(&p.SMAWindow, def.SMAWindow)
	setInt(&p.EMAWindow, def.EMAWindow)
	setInt(&p.RSIWindow, def.RSIWindow)
	setInt(&p.VolatilityWindow, def.VolatilityWindow)
	setInt(&p.MACDShort, def.MACDShort)
	setInt(&p.MACDLong, def.MACDLong)
	setInt(&p.MACDSignal, def.MACDSignal)
	setInt(&p.BBWindow, def.BBWindow)
	setInt(&p.ADIWindow, def.ADIWindow)
	if p.BBStd == 0 {
		p.BBStd = def.BBStd
	}

	if len(c.MomentumLookbacks) == 0 {
		c.MomentumLookbacks = []int{20, 60, 120}
	}
	if c.MomentumWeight == 0 {
		c.MomentumWeight = 1.0
	}
	if c.HistoryStart == "" {
		c.HistoryStart = "2020-01-01"
	}
	if c.BacktestStart == "" {
		c.BacktestStart = "2024-01-01"
	}
	if c.BacktestEnd == "" {
		c.BacktestEnd = "2024-12-31"
	}
	if c.TopFraction == 0 {
		c.TopFraction = 0.3
	}
	if c.MissingValueMethod == "" {
		c.MissingValueMethod = string(normalize.FFill)
	}
	if c.CacheDir == "" {
		c.CacheDir = "cache"
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 24 * time.Hour
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}

	yd := data.DefaultYahooConfig()
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = yd.BaseURL
	}
	if c.Provider.RPS == 0 {
		c.Provider.RPS = yd.RPS
	}
	if c.Provider.Burst == 0 {
		c.Provider.Burst = yd.Burst
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = yd.Timeout
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "out"
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

// Load reads path, applies defaults and environment overrides, and
// validates. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks struct tags and the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errs.InvalidArgument("%s", strings.Join(msgs, "; "))
		}
		return err
	}

	if !c.InitialCash.IsPositive() {
		return errs.InvalidArgument("InitialCash must be positive, got %s", c.InitialCash)
	}
	if err := c.IndicatorParameters.Validate(); err != nil {
		return err
	}
	for key := range c.LookbackWeights {
		if !c.hasLookback(key) {
			return errs.KeyNotFound("lookback weight", key)
		}
	}

	history, _ := market.ParseDate(c.HistoryStart)
	start, _ := market.ParseDate(c.BacktestStart)
	end, _ := market.ParseDate(c.BacktestEnd)
	training := c.TrainingEnd()
	if end.Before(start) {
		return errs.InvalidArgument("BacktestEnd %s is before BacktestStart %s", c.BacktestEnd, c.BacktestStart)
	}
	if training.Before(history) {
		return errs.InvalidArgument("TrainingEndDate %s is before HistoryStart %s",
			training.Format(market.DateLayout), c.HistoryStart)
	}
	return nil
}

func (c *Config) hasLookback(key string) bool {
	for _, w := range c.MomentumLookbacks {
		if key == fmt.Sprintf("Lookback_%d", w) {
			return true
		}
	}
	return false
}

// TrainingEnd returns TrainingEndDate, or the day before BacktestStart
// when it is unset.
func (c *Config) TrainingEnd() time.Time {
	if c.TrainingEndDate != "" {
		if t, err := market.ParseDate(c.TrainingEndDate); err == nil {
			return t
		}
	}
	start, err := market.ParseDate(c.BacktestStart)
	if err != nil {
		return time.Time{}
	}
	return start.AddDate(0, 0, -1)
}

// TrainingRange is [HistoryStart, TrainingEnd].
func (c *Config) TrainingRange() market.DateRange {
	history, _ := market.ParseDate(c.HistoryStart)
	return market.DateRange{Start: history, End: c.TrainingEnd()}
}

// BacktestRange is [BacktestStart, BacktestEnd].
func (c *Config) BacktestRange() market.DateRange {
	start, _ := market.ParseDate(c.BacktestStart)
	end, _ := market.ParseDate(c.BacktestEnd)
	return market.DateRange{Start: start, End: end}
}

// Pipeline maps the ranking keys onto a pipeline configuration.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		Indicators:       c.IndicatorParameters,
		IndicatorWeights: c.IndicatorWeights,
		Lookbacks:        append([]int(nil), c.MomentumLookbacks...),
		LookbackWeights:  c.LookbackWeights,
		MomentumWeight:   c.MomentumWeight,
		MissingValues:    normalize.Method(c.MissingValueMethod),
		Allocation:       portfolio.Method(c.AllocationMethod),
		TopN:             c.TopN,
		TopFraction:      c.TopFraction,
	}
}

// Backtest maps the horizon keys onto a rebalance configuration.
func (c *Config) Backtest() rebalance.Config {
	tr := c.TrainingRange()
	br := c.BacktestRange()
	return rebalance.Config{
		InitialCash:  c.InitialCash,
		HistoryStart: tr.Start,
		TrainingEnd:  tr.End,
		Start:        br.Start,
		End:          br.End,
		Universe:     append([]string(nil), c.Tickers...),
	}
}

// Yahoo maps the provider keys onto a client configuration.
func (c *Config) Yahoo() data.YahooConfig {
	yc := data.DefaultYahooConfig()
	yc.BaseURL = c.Provider.BaseURL
	yc.RPS = c.Provider.RPS
	yc.Burst = c.Provider.Burst
	yc.Timeout = c.Provider.Timeout
	return yc
}
