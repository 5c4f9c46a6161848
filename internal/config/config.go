// Package config loads command configuration from a YAML file, the
// environment (optionally seeded from a .env file) and command-line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"equity-backtester/internal/backtest"
	"equity-backtester/internal/domain"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "BACKTEST_"

// ErrInvalid is returned by Validate for unusable configuration.
var ErrInvalid = errors.New("invalid config")

// Config is the shared configuration of the commands.
type Config struct {
	// Run parameters
	InitialCapital   float64 `yaml:"initial_capital"`
	StartDate        string  `yaml:"start_date"` // YYYY-MM-DD
	EndDate          string  `yaml:"end_date"`   // YYYY-MM-DD, inclusive
	MaxPositions     int     `yaml:"max_positions"`
	Commission       float64 `yaml:"commission"`
	SlippagePct      float64 `yaml:"slippage_pct"`
	FractionalShares bool    `yaml:"fractional_shares"`

	// Inputs
	StrategyFile string `yaml:"strategy_file"`
	DataDir      string `yaml:"data_dir"` // bars.csv, earnings.csv, fundamentals.csv

	// Storage
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`

	// Observability
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsAddr string `yaml:"metrics_addr"` // empty disables the endpoint
	Tracing     bool   `yaml:"tracing"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		InitialCapital:   100000,
		MaxPositions:     backtest.DefaultMaxPositions,
		FractionalShares: true,
		LogLevel:         "info",
		LogFormat:        "console",
	}
}

// setting binds one field to its flag and environment variable.
type setting struct {
	name   string // flag name; the env name is EnvPrefix + upper snake case
	usage  string
	isBool bool
	set    func(c *Config, v string) error
}

func (s setting) envName() string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(s.name, "-", "_"))
}

func stringSetting(name, usage string, field func(*Config) *string) setting {
	return setting{name: name, usage: usage, set: func(c *Config, v string) error {
		*field(c) = v
		return nil
	}}
}

func floatSetting(name, usage string, field func(*Config) *float64) setting {
	return setting{name: name, usage: usage, set: func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}}
}

func intSetting(name, usage string, field func(*Config) *int) setting {
	return setting{name: name, usage: usage, set: func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}}
}

func boolSetting(name, usage string, field func(*Config) *bool) setting {
	return setting{name: name, usage: usage, isBool: true, set: func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}}
}

var settings = []setting{
	floatSetting("initial-capital", "Starting cash", func(c *Config) *float64 { return &c.InitialCapital }),
	stringSetting("start-date", "First simulated day (YYYY-MM-DD)", func(c *Config) *string { return &c.StartDate }),
	stringSetting("end-date", "Last simulated day, inclusive (YYYY-MM-DD)", func(c *Config) *string { return &c.EndDate }),
	intSetting("max-positions", "Maximum concurrently open positions", func(c *Config) *int { return &c.MaxPositions }),
	floatSetting("commission", "Flat commission per trade", func(c *Config) *float64 { return &c.Commission }),
	floatSetting("slippage-pct", "Slippage as a fraction of price (0.001 = 0.1%)", func(c *Config) *float64 { return &c.SlippagePct }),
	boolSetting("fractional-shares", "Allow fractional share quantities", func(c *Config) *bool { return &c.FractionalShares }),
	stringSetting("strategy-file", "Strategy YAML file", func(c *Config) *string { return &c.StrategyFile }),
	stringSetting("data-dir", "Directory with bars.csv, earnings.csv and fundamentals.csv", func(c *Config) *string { return &c.DataDir }),
	stringSetting("postgres-dsn", "PostgreSQL connection string", func(c *Config) *string { return &c.PostgresDSN }),
	stringSetting("clickhouse-dsn", "ClickHouse connection string", func(c *Config) *string { return &c.ClickhouseDSN }),
	stringSetting("log-level", "Log level: debug, info, warn, error", func(c *Config) *string { return &c.LogLevel }),
	stringSetting("log-format", "Log format: json or console", func(c *Config) *string { return &c.LogFormat }),
	stringSetting("metrics-addr", "Address for the Prometheus /metrics endpoint", func(c *Config) *string { return &c.MetricsAddr }),
	boolSetting("tracing", "Export run traces to stderr", func(c *Config) *bool { return &c.Tracing }),
}

// Load registers the shared flags on fset, parses args and returns the merged
// configuration. Callers may register their own flags on fset beforehand.
// The -config flag names the YAML file and -env-file the dotenv file; a
// missing dotenv file is ignored.
func Load(fset *flag.FlagSet, args []string) (*Config, error) {
	configPath := fset.String("config", "", "YAML config file")
	envFile := fset.String("env-file", ".env", "Dotenv file merged into the environment")

	flagValues := make(map[string]string)
	for _, s := range settings {
		name := s.name
		record := func(v string) error {
			flagValues[name] = v
			return nil
		}
		if s.isBool {
			fset.BoolFunc(name, s.usage, record)
		} else {
			fset.Func(name, s.usage, record)
		}
	}

	if err := fset.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if *configPath != "" {
		if err := cfg.readFile(*configPath); err != nil {
			return nil, err
		}
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", *envFile, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	for _, s := range settings {
		v, ok := flagValues[s.name]
		if !ok {
			continue
		}
		if err := s.set(cfg, v); err != nil {
			return nil, fmt.Errorf("flag -%s: %w", s.name, err)
		}
	}

	return cfg, nil
}

// readFile overlays the YAML file at path onto c.
func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays BACKTEST_* variables onto c.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, s := range settings {
		v, ok := lookup(s.envName())
		if !ok || v == "" {
			continue
		}
		if err := s.set(c, v); err != nil {
			return fmt.Errorf("%s: %w", s.envName(), err)
		}
	}
	return nil
}

// Validate checks the run parameters.
func (c *Config) Validate() error {
	_, err := c.BacktestConfig()
	return err
}

// BacktestConfig converts the run parameters into a validated backtest.Config.
func (c *Config) BacktestConfig() (backtest.Config, error) {
	start, err := parseDate("start date", c.StartDate)
	if err != nil {
		return backtest.Config{}, err
	}
	end, err := parseDate("end date", c.EndDate)
	if err != nil {
		return backtest.Config{}, err
	}

	bc := backtest.Config{
		InitialCapital:   c.InitialCapital,
		StartDate:        start,
		EndDate:          end,
		MaxPositions:     c.MaxPositions,
		Commission:       c.Commission,
		SlippagePct:      c.SlippagePct,
		FractionalShares: c.FractionalShares,
	}
	if err := bc.Validate(); err != nil {
		return backtest.Config{}, err
	}
	return bc, nil
}

func parseDate(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", ErrInvalid, name)
	}
	t, err := domain.ParseDay(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q: %v", ErrInvalid, name, v, err)
	}
	return t, nil
}
