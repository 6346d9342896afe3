// Package constants provides shared constants for the equity-waterfall application.
package constants

// DateLayout is the format expected for round dates in cap tables and is also
// the output date format.
const DateLayout = "2006-01-02"

// Share class names used across cap tables.
const (
	// ClassCommon is the founders' common stock.
	ClassCommon = "Common"

	// ClassOptionPool is the employee option pool; it ranks with common at exit.
	ClassOptionPool = "Option Pool"

	// ClassSeriesSeed is the preferred class issued by pre-seed and seed rounds.
	ClassSeriesSeed = "Series Seed"

	// ClassSeriesA is the preferred class issued by the Series A round.
	ClassSeriesA = "Series A"
)

// Financial constants
const (
	// PercentageMultiplier is used for percentage conversions
	PercentageMultiplier = 100.0

	// PercentPrecision is the number of decimals kept on percentages and multiples
	PercentPrecision = 2

	// DaysPerYear is used to annualize holding periods
	DaysPerYear = 365.25

	// MinYearsHeld floors the holding period used by the IRR approximation
	MinYearsHeld = 0.5

	// DefaultLiquidationMultiple applies to preferred classes without an explicit preference
	DefaultLiquidationMultiple = 1.0
)

// Sensitivity defaults
const (
	// DefaultSensitivitySteps is the number of intervals between zero and the maximum exit
	DefaultSensitivitySteps = 20

	// MaxSensitivitySteps bounds the work of a single sweep
	MaxSensitivitySteps = 1000

	// DefaultPostMoney is used as the reference valuation when a company has no rounds
	DefaultPostMoney = 10_000_000.0

	// SensitivityExitMultiple scales the reference post-money into the maximum exit valuation
	SensitivityExitMultiple = 10.0

	// FundSeriesKey is the key under which fund proceeds are reported in sensitivity points
	FundSeriesKey = "Our Fund"
)

// Round modeling constants
const (
	// NewInvestorID identifies the synthetic shareholder covering the external part of a round
	NewInvestorID = "new_investor"

	// NewInvestorName is the display name of the synthetic new investor
	NewInvestorName = "New Investor(s)"

	// NewLeadInvestor is recorded as the lead of a modeled round
	NewLeadInvestor = "New Investor"

	// UnknownShareholderName is shown for holdings whose shareholder is not listed
	UnknownShareholderName = "Unknown"
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputFormatJSON is the JSON output format
	OutputFormatJSON = "json"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// ExampleConfigFile is the example configuration file name
	ExampleConfigFile = "config.yaml.example"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"

	// EnvPrefix prefixes environment variable overrides
	EnvPrefix = "EQUITY_WATERFALL"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address for the API
	DefaultServerAddress = ":8080"

	// DefaultMaxUploadSizeBytes is the default maximum request body size (256 KB)
	DefaultMaxUploadSizeBytes int64 = 256 * 1024
)

// Validation constants
const (
	// CurrencyTolerance is the tolerance for whole-currency comparisons
	CurrencyTolerance = 1.0
)
