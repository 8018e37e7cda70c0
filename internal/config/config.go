package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/vitos/ha_trader/internal/domain"
)

// Environment overrides for broker credentials.
const (
	EnvAPIKey    = "OANDA_API_KEY"
	EnvAccountID = "OANDA_ACCOUNT_ID"
	EnvURL       = "OANDA_URL"
)

const defaultOandaURL = "https://api-fxpractice.oanda.com/v3"

type Config struct {
	Broker struct {
		APIKey         string `yaml:"api_key"`
		AccountID      string `yaml:"account_id"`
		RESTEndpoint   string `yaml:"rest_endpoint"`
		HomeCurrency   string `yaml:"home_currency"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"broker"`
	Polling struct {
		PeriodSeconds int `yaml:"period_seconds"`
		Workers       int `yaml:"workers"`
	} `yaml:"polling"`
	Logging struct {
		Level         string `yaml:"level"`
		Dir           string `yaml:"dir"`
		BotName       string `yaml:"bot_name"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Trading Trading      `yaml:"trading"`
	Pairs   []PairConfig `yaml:"pairs"`
}

// Trading holds the engine's tuning constants.
type Trading struct {
	DryRun           bool     `yaml:"dry_run"`
	AccountLeverage  float64  `yaml:"account_leverage"`
	VolTarget        *float64 `yaml:"vol_target"`
	StdLookback      int      `yaml:"std_lookback"`
	MaxLeverage      float64  `yaml:"max_leverage"`
	MaxTradeFraction float64  `yaml:"max_trade_fraction"`
	MinQtyFraction   float64  `yaml:"min_qty_fraction"`
	HeikenAshiStreak int      `yaml:"heiken_ashi_streak"`
	HeikenAshiWindow int      `yaml:"heiken_ashi_window"`
	TrendOffset      int      `yaml:"trend_offset"`
	RSIPeriod        int      `yaml:"rsi_period"`
	RSIOverbought    float64  `yaml:"rsi_overbought"`
	RSIOversold      float64  `yaml:"rsi_oversold"`
	ATRPeriod        int      `yaml:"atr_period"`
	ATRRiskFilter    float64  `yaml:"atr_risk_filter"`
	TPMultiple       float64  `yaml:"tp_multiple"`
	DonchianWindow   int      `yaml:"donchian_window"`
	MaxEntryStrength float64  `yaml:"max_entry_strength"`
	CandleCount      int      `yaml:"candle_count"`
	DailyCandleCount int      `yaml:"daily_candle_count"`
}

// VolatilityTarget is the annualized volatility the sizer aims for; 0 sizes from margin.
func (t Trading) VolatilityTarget() float64 {
	if t.VolTarget == nil {
		return 0
	}
	return *t.VolTarget
}

// PairConfig is the fixed per-pair trading setup.
type PairConfig struct {
	Pair          string             `yaml:"pair"`
	Granularity   domain.Granularity `yaml:"granularity"`
	Weight        float64            `yaml:"weight"`
	LongOnly      bool               `yaml:"long_only"`
	ShortOnly     bool               `yaml:"short_only"`
	CompletedOnly *bool              `yaml:"completed_only"`
}

// WaitsForCompletion reports whether only completed candles count as new data.
func (p PairConfig) WaitsForCompletion() bool {
	return p.CompletedOnly == nil || *p.CompletedOnly
}

// Load reads the YAML file at path, overlays credentials from the environment (and an
// optional .env beside the config file or in the working directory), then applies
// defaults and validates.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	loadDotEnv(filepath.Dir(path))
	cfg.applyEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// A missing .env is fine: the variables may come from the process environment.
func loadDotEnv(configDir string) {
	for _, p := range []string{filepath.Join(configDir, ".env"), ".env"} {
		if err := godotenv.Load(p); err == nil {
			return
		}
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Broker.APIKey = v
	}
	if v := os.Getenv(EnvAccountID); v != "" {
		c.Broker.AccountID = v
	}
	if v := os.Getenv(EnvURL); v != "" {
		c.Broker.RESTEndpoint = v
	}
}

// ApplyDefaults fills every unset value.
func (c *Config) ApplyDefaults() {
	setString(&c.Broker.RESTEndpoint, defaultOandaURL)
	setString(&c.Broker.HomeCurrency, "GBP")
	setInt(&c.Broker.TimeoutSeconds, 10)
	setInt(&c.Polling.PeriodSeconds, 30)
	setInt(&c.Polling.Workers, 8)
	setString(&c.Logging.Level, "info")
	setString(&c.Logging.Dir, "logs")
	setString(&c.Logging.BotName, "ha_trader")
	setInt(&c.Logging.RetentionDays, 30)
	setInt(&c.Server.Port, 8080)
	setString(&c.Storage.Path, "journal.db")

	t := &c.Trading
	if t.VolTarget == nil {
		v := 0.2
		t.VolTarget = &v
	}
	setInt(&t.StdLookback, 36)
	setFloat(&t.MaxLeverage, 10)
	setFloat(&t.MaxTradeFraction, 0.5)
	setFloat(&t.MinQtyFraction, 0.15)
	setInt(&t.HeikenAshiStreak, 2)
	setInt(&t.HeikenAshiWindow, 100)
	setInt(&t.TrendOffset, 5)
	setInt(&t.RSIPeriod, 14)
	setFloat(&t.RSIOverbought, 70)
	setFloat(&t.RSIOversold, 30)
	setInt(&t.ATRPeriod, 50)
	setFloat(&t.ATRRiskFilter, 3)
	setFloat(&t.TPMultiple, 2)
	setInt(&t.DonchianWindow, 10)
	setInt(&t.CandleCount, 5000)
	setInt(&t.DailyCandleCount, 500)

	for i := range c.Pairs {
		p := &c.Pairs[i]
		p.Pair = strings.ToUpper(strings.TrimSpace(p.Pair))
		if p.Granularity == "" {
			p.Granularity = domain.M30
		}
		setFloat(&p.Weight, 0.1)
		if p.CompletedOnly == nil {
			v := true
			p.CompletedOnly = &v
		}
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Polling.PeriodSeconds <= 0 {
		errs = append(errs, errors.New("polling.period_seconds must be positive"))
	}
	if c.Polling.Workers <= 0 {
		errs = append(errs, errors.New("polling.workers must be positive"))
	}
	if len(c.Pairs) == 0 {
		errs = append(errs, errors.New("no pairs configured"))
	}
	if c.Trading.VolatilityTarget() < 0 {
		errs = append(errs, errors.New("trading.vol_target must not be negative"))
	}
	if c.Trading.MaxLeverage <= 0 {
		errs = append(errs, errors.New("trading.max_leverage must be positive"))
	}
	if c.Trading.TrendOffset < 0 || c.Trading.TrendOffset >= 30 {
		errs = append(errs, errors.New("trading.trend_offset must be in [0,30)"))
	}
	if c.Trading.HeikenAshiStreak < 1 {
		errs = append(errs, errors.New("trading.heiken_ashi_streak must be at least 1"))
	}
	if c.Trading.DonchianWindow < 1 {
		errs = append(errs, errors.New("trading.donchian_window must be at least 1"))
	}
	for _, p := range []struct {
		name string
		v    int
	}{
		{"rsi_period", c.Trading.RSIPeriod},
		{"atr_period", c.Trading.ATRPeriod},
		{"std_lookback", c.Trading.StdLookback},
	} {
		if p.v < 2 {
			errs = append(errs, fmt.Errorf("trading.%s must be at least 2", p.name))
		}
	}

	seen := make(map[string]bool, len(c.Pairs))
	for _, p := range c.Pairs {
		if p.Pair == "" {
			errs = append(errs, errors.New("pair with empty name"))
			continue
		}
		if seen[p.Pair] {
			errs = append(errs, fmt.Errorf("%s: configured twice", p.Pair))
		}
		seen[p.Pair] = true
		if !p.Granularity.Valid() {
			errs = append(errs, fmt.Errorf("%s: unknown granularity %q", p.Pair, p.Granularity))
		}
		if p.Weight < 0 || p.Weight > 1 {
			errs = append(errs, fmt.Errorf("%s: weight %.3f outside [0,1]", p.Pair, p.Weight))
		}
		if p.LongOnly && p.ShortOnly {
			errs = append(errs, fmt.Errorf("%s: long_only and short_only are mutually exclusive", p.Pair))
		}
	}
	return multierr.Combine(errs...)
}

// Pair returns the configuration of a pair.
func (c *Config) Pair(name string) (PairConfig, error) {
	for _, p := range c.Pairs {
		if p.Pair == name {
			return p, nil
		}
	}
	return PairConfig{}, fmt.Errorf("%s: %w", name, domain.ErrUnknownPair)
}

// PairNames lists configured pairs in file order.
func (c *Config) PairNames() []string {
	out := make([]string, len(c.Pairs))
	for i, p := range c.Pairs {
		out[i] = p.Pair
	}
	return out
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setFloat(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}
