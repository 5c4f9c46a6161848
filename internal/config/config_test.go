package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newFlagSet(), []string{"-env-file", ""})
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 100000.0, cfg.InitialCapital)
	assert.True(t, cfg.FractionalShares)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, "config.yaml", `
initial_capital: 50000
start_date: "2023-01-03"
end_date: "2023-12-29"
max_positions: 4
commission: 1.5
slippage_pct: 0.001
strategy_file: strategies/surprise.yaml
log_level: debug
`)

	t.Setenv("BACKTEST_MAX_POSITIONS", "6")
	t.Setenv("BACKTEST_COMMISSION", "2")

	cfg, err := Load(newFlagSet(), []string{
		"-config", path,
		"-env-file", "",
		"-commission", "3",
		"-fractional-shares=false",
	})
	require.NoError(t, err)

	assert.Equal(t, 50000.0, cfg.InitialCapital, "yaml")
	assert.Equal(t, "2023-01-03", cfg.StartDate, "yaml")
	assert.Equal(t, 6, cfg.MaxPositions, "env over yaml")
	assert.Equal(t, 3.0, cfg.Commission, "flag over env")
	assert.False(t, cfg.FractionalShares, "flag over default")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "strategies/surprise.yaml", cfg.StrategyFile)
}

func TestLoad_DotEnv(t *testing.T) {
	path := writeFile(t, ".env", "BACKTEST_SLIPPAGE_PCT=0.002\nBACKTEST_TRACING=true\n")
	t.Cleanup(func() {
		os.Unsetenv("BACKTEST_SLIPPAGE_PCT")
		os.Unsetenv("BACKTEST_TRACING")
	})

	cfg, err := Load(newFlagSet(), []string{"-env-file", path})
	require.NoError(t, err)

	assert.Equal(t, 0.002, cfg.SlippagePct)
	assert.True(t, cfg.Tracing)
}

func TestLoad_MissingDotEnvIgnored(t *testing.T) {
	_, err := Load(newFlagSet(), []string{"-env-file", filepath.Join(t.TempDir(), "absent.env")})
	require.NoError(t, err)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("bad yaml", func(t *testing.T) {
		path := writeFile(t, "config.yaml", "initial_capital: [1, 2")
		_, err := Load(newFlagSet(), []string{"-config", path, "-env-file", ""})
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(newFlagSet(), []string{"-config", "/nonexistent/config.yaml", "-env-file", ""})
		assert.Error(t, err)
	})

	t.Run("bad env value", func(t *testing.T) {
		t.Setenv("BACKTEST_MAX_POSITIONS", "many")
		_, err := Load(newFlagSet(), []string{"-env-file", ""})
		assert.ErrorContains(t, err, "BACKTEST_MAX_POSITIONS")
	})

	t.Run("bad flag value", func(t *testing.T) {
		_, err := Load(newFlagSet(), []string{"-env-file", "", "-initial-capital", "lots"})
		assert.ErrorContains(t, err, "initial-capital")
	})
}

func TestLoad_CallerFlags(t *testing.T) {
	fs := newFlagSet()
	format := fs.String("format", "summary", "")

	cfg, err := Load(fs, []string{"-env-file", "", "-format", "json", "-start-date", "2024-01-02"})
	require.NoError(t, err)

	assert.Equal(t, "json", *format)
	assert.Equal(t, "2024-01-02", cfg.StartDate)
}

func TestBacktestConfig(t *testing.T) {
	cfg := Default()
	cfg.StartDate = "2024-01-02"
	cfg.EndDate = "2024-03-28"
	cfg.Commission = 1
	cfg.SlippagePct = 0.0005

	bc, err := cfg.BacktestConfig()
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), bc.StartDate)
	assert.Equal(t, time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC), bc.EndDate)
	assert.Equal(t, 100000.0, bc.InitialCapital)
	assert.Equal(t, 1.0, bc.Commission)
	assert.Equal(t, 0.0005, bc.SlippagePct)
	assert.True(t, bc.FractionalShares)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"missing start", func(c *Config) { c.StartDate = "" }},
		{"bad end", func(c *Config) { c.EndDate = "28/03/2024" }},
		{"end before start", func(c *Config) { c.EndDate = "2023-12-01" }},
		{"zero capital", func(c *Config) { c.InitialCapital = 0 }},
		{"zero max positions", func(c *Config) { c.MaxPositions = 0 }},
		{"negative commission", func(c *Config) { c.Commission = -1 }},
		{"negative slippage", func(c *Config) { c.SlippagePct = -0.01 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.StartDate = "2024-01-02"
			cfg.EndDate = "2024-03-28"
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
