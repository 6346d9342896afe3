package config

import (
	"github.com/iwvelando/equity-waterfall/pkg/constants"
	"github.com/iwvelando/equity-waterfall/pkg/sensitivity"
	"github.com/iwvelando/equity-waterfall/pkg/waterfall"
)

// SensitivityConfig sets the defaults for exit-valuation sweeps. A zero
// MaxExit means ten times the last post-money; zero Workers means GOMAXPROCS.
type SensitivityConfig struct {
	Steps   int     `yaml:"steps,omitempty" json:"steps,omitempty" mapstructure:"steps"`
	MaxExit float64 `yaml:"maxExit,omitempty" json:"maxExit,omitempty" mapstructure:"maxExit"`
	Workers int     `yaml:"workers,omitempty" json:"workers,omitempty" mapstructure:"workers"`
}

func (s *SensitivityConfig) normalize() {
	if s.Steps <= 0 {
		s.Steps = constants.DefaultSensitivitySteps
	}
	if s.MaxExit < 0 {
		s.MaxExit = 0
	}
	if s.Workers < 0 {
		s.Workers = 0
	}
}

// Options converts the configured defaults into analyzer options.
func (s SensitivityConfig) Options() sensitivity.Options {
	return sensitivity.Options{Steps: s.Steps, MaxExit: s.MaxExit, Workers: s.Workers}
}

// WaterfallConfig selects how preferred conversion is decided.
type WaterfallConfig struct {
	Conversion string `yaml:"conversion,omitempty" json:"conversion,omitempty" mapstructure:"conversion"` // single-pass, iterative
}

// Strategy parses the configured conversion strategy.
func (w WaterfallConfig) Strategy() (waterfall.ConversionStrategy, error) {
	return waterfall.ParseConversionStrategy(w.Conversion)
}
