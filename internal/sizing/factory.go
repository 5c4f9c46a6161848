package sizing

import (
	"fmt"

	"equity-backtester/internal/domain"
)

// FromConfig creates a PositionSizer from its tagged form.
// Validates required parameters per sizer type.
func FromConfig(cfg domain.SizerConfig) (PositionSizer, error) {
	switch cfg.Type {
	case domain.SizerFixedDollarAmount:
		v, err := required(cfg.Type, "dollar_amount", cfg.DollarAmount)
		if err != nil {
			return nil, err
		}
		return NewFixedDollarAmount(v)

	case domain.SizerPercentPortfolio:
		v, err := required(cfg.Type, "percent", cfg.Percent)
		if err != nil {
			return nil, err
		}
		return NewPercentPortfolio(v)

	case domain.SizerPercentAvailableCash:
		v, err := required(cfg.Type, "percent", cfg.Percent)
		if err != nil {
			return nil, err
		}
		return NewPercentAvailableCash(v)

	case domain.SizerEqualWeight:
		n := DefaultMaxPositions
		if cfg.DefaultMaxPositions != nil {
			n = *cfg.DefaultMaxPositions
		}
		return NewEqualWeight(n)

	case domain.SizerFixedShares:
		v, err := required(cfg.Type, "shares", cfg.Shares)
		if err != nil {
			return nil, err
		}
		return NewFixedShares(v)

	case domain.SizerRiskParity:
		base, err := required(cfg.Type, "base_dollar_amount", cfg.BaseDollarAmount)
		if err != nil {
			return nil, err
		}
		return NewRiskParity(base, orDefault(cfg.TargetVolatility, DefaultTargetVolatility), orDefault(cfg.MaxAdjustment, DefaultMaxAdjustment))

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSizer, cfg.Type)
	}
}

func required(sizerType, name string, v *float64) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: %s requires %s", ErrMissingParam, sizerType, name)
	}
	return *v, nil
}

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
