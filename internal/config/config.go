// Package config defines the data structures related to configuration and
// includes functions for loading and validating it.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/iwvelando/equity-waterfall/pkg/captable"
	"github.com/iwvelando/equity-waterfall/pkg/constants"
	"github.com/iwvelando/equity-waterfall/pkg/portfolio"
	"github.com/iwvelando/equity-waterfall/pkg/validation"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Configuration holds all configuration for equity-waterfall.
type Configuration struct {
	Logging     LoggingConfig     `yaml:"logging,omitempty" json:"logging"`
	Output      OutputConfig      `yaml:"output,omitempty" json:"output"`
	Fund        captable.Fund     `yaml:"fund" json:"fund"`
	Sensitivity SensitivityConfig `yaml:"sensitivity,omitempty" json:"sensitivity"`
	Waterfall   WaterfallConfig   `yaml:"waterfall,omitempty" json:"waterfall"`
	Companies   []Company         `yaml:"companies" json:"companies"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty" json:"level,omitempty"`           // debug, info, warn, error
	Format     string `yaml:"format,omitempty" json:"format,omitempty"`         // json, console
	OutputFile string `yaml:"outputFile,omitempty" json:"outputFile,omitempty"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty" json:"format,omitempty"` // pretty, csv, json
}

// Company is one portfolio company: its metadata, its cap table, the
// externally supplied implied valuation, and any exit valuations to report.
type Company struct {
	portfolio.Company `yaml:",inline" mapstructure:",squash"`
	ImpliedValuation  float64           `yaml:"impliedValuation,omitempty" json:"impliedValuation"`
	ExitScenarios     []float64         `yaml:"exitScenarios,omitempty" json:"exitScenarios,omitempty"`
	CapTable          captable.CapTable `yaml:"capTable" json:"capTable"`
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. A .env file in the working directory is loaded first
// when present so EQUITY_WATERFALL_* overrides can live beside the config.
func LoadConfiguration(configPath string) (*Configuration, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file, %w", err)
	}

	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %w", err)
	}
	return decode(v)
}

// LoadConfigurationFromReader loads a YAML-formatted configuration from r.
// Environment overrides apply the same way as for LoadConfiguration.
func LoadConfigurationFromReader(r io.Reader) (*Configuration, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config data, %w", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys need a default for AutomaticEnv to see them during Unmarshal.
	v.SetDefault("logging.level", "")
	v.SetDefault("logging.format", "")
	v.SetDefault("logging.outputFile", "")
	v.SetDefault("output.format", "")
	v.SetDefault("fund.id", "")
	v.SetDefault("fund.name", "")
	v.SetDefault("sensitivity.steps", constants.DefaultSensitivitySteps)
	v.SetDefault("sensitivity.maxExit", 0)
	v.SetDefault("sensitivity.workers", 0)
	v.SetDefault("waterfall.conversion", "")
	return v
}

func decode(v *viper.Viper) (*Configuration, error) {
	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	configuration.normalize()
	return &configuration, nil
}

// normalize fills identifiers that a config file may leave implicit.
func (c *Configuration) normalize() {
	for i := range c.Companies {
		company := &c.Companies[i]
		if company.CapTable.CompanyID == "" {
			company.CapTable.CompanyID = company.ID
		}
		for j := range company.CapTable.Rounds {
			if company.CapTable.Rounds[j].CompanyID == "" {
				company.CapTable.Rounds[j].CompanyID = company.CapTable.CompanyID
			}
		}
		if company.Name == "" {
			company.Name = company.ID
		}
		// Ownership is always derived from share counts; Validate reports a bad total.
		if holdings, err := captable.RecomputeOwnership(company.CapTable.Holdings, company.CapTable.TotalShares); err == nil {
			company.CapTable.Holdings = holdings
		}
	}
	c.Sensitivity.normalize()
}

// FindCompany returns the configured company with the given id.
func (c *Configuration) FindCompany(id string) (*Company, bool) {
	for i := range c.Companies {
		if c.Companies[i].ID == id {
			return &c.Companies[i], true
		}
	}
	return nil, false
}

// ValidateConfiguration performs general validation of the configuration and returns warnings
func (c *Configuration) ValidateConfiguration() []string {
	var warnings []string

	if c.Fund.ID == "" {
		warnings = append(warnings, "fund id is not set; fund proceeds and positions will be empty")
	}
	if _, err := c.Waterfall.Strategy(); err != nil {
		warnings = append(warnings, fmt.Sprintf("%v; using single-pass conversion", err))
	}

	for i := range c.Companies {
		company := &c.Companies[i]
		if company.ID == "" {
			warnings = append(warnings, fmt.Sprintf("Company '%s' has no id", company.Name))
			continue
		}
		if first, _ := c.FindCompany(company.ID); first != company {
			warnings = append(warnings, fmt.Sprintf("Company '%s' is listed more than once; only the first entry is used", company.ID))
			continue
		}

		if company.CapTable.CompanyID != company.ID {
			warnings = append(warnings, fmt.Sprintf("Company '%s' cap table is labelled '%s'",
				company.ID, company.CapTable.CompanyID))
		}
		if company.ImpliedValuation <= 0 {
			warnings = append(warnings, fmt.Sprintf("Company '%s' has no implied valuation; unrealized value will be zero", company.ID))
		}
		warnings = append(warnings, validation.CapTableWarnings(company.CapTable, c.Fund.ID)...)
	}

	return warnings
}
