// Package output renders cap table analyses as pretty tables, CSV, or JSON.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/iwvelando/equity-waterfall/pkg/captable"
	"github.com/iwvelando/equity-waterfall/pkg/constants"
	"github.com/iwvelando/equity-waterfall/pkg/format"
	"github.com/iwvelando/equity-waterfall/pkg/portfolio"
	"github.com/iwvelando/equity-waterfall/pkg/rounds"
	"github.com/iwvelando/equity-waterfall/pkg/sensitivity"
	"github.com/iwvelando/equity-waterfall/pkg/validation"
	"github.com/iwvelando/equity-waterfall/pkg/waterfall"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// NotAvailable is shown in place of results that cannot be computed.
const NotAvailable = "n/a"

// Printer writes results to w in one output format.
type Printer struct {
	w      io.Writer
	format string
	p      *message.Printer
}

// NewPrinter creates a printer for the given output format.
func NewPrinter(w io.Writer, outputFormat string) (*Printer, error) {
	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		return nil, err
	}
	return &Printer{w: w, format: outputFormat, p: message.NewPrinter(language.English)}, nil
}

// Ownership renders the holdings of a cap table with shareholder names.
func (pr *Printer) Ownership(ct captable.CapTable) error {
	switch pr.format {
	case constants.OutputFormatJSON:
		return pr.json(ct)
	case constants.OutputFormatCSV:
		records := [][]string{{"shareholder", "share class", "shares", "ownership pct", "investment"}}
		for _, h := range ct.Holdings {
			records = append(records, []string{
				shareholderName(ct, h.ShareholderID),
				h.ShareClass,
				strconv.FormatInt(h.Shares, 10),
				fixed(h.OwnershipPct),
				fixed(h.InvestmentAmount),
			})
		}
		return pr.csv(records)
	}

	pr.printf("--- Ownership for %s (%d shares) ---\n", ct.CompanyID, ct.TotalShares)
	pr.printf("Shareholder | Class | Shares | Ownership | Invested\n")
	for _, h := range ct.Holdings {
		pr.printf("%s | %s | %d | %s | %s\n",
			shareholderName(ct, h.ShareholderID), h.ShareClass, h.Shares,
			format.Percent(h.OwnershipPct), format.WholeCurrency(h.InvestmentAmount))
	}
	return nil
}

// Round renders a modeled round. A nil result is rendered as not available.
func (pr *Printer) Round(companyID string, result *rounds.Result) error {
	switch pr.format {
	case constants.OutputFormatJSON:
		if result == nil {
			return pr.json(map[string]any{"available": false})
		}
		return pr.json(result)
	case constants.OutputFormatCSV:
		records := [][]string{{"shareholder id", "shareholder", "before pct", "after pct", "dilution"}}
		if result != nil {
			for _, d := range result.DilutionPreview {
				records = append(records, []string{d.ShareholderID, d.ShareholderName, fixed(d.BeforePct), fixed(d.AfterPct), fixed(d.Dilution)})
			}
		}
		return pr.csv(records)
	}

	if result == nil {
		pr.printf("--- Round model for %s: %s ---\n", companyID, NotAvailable)
		return nil
	}
	pr.printf("--- Round model for %s: %s ---\n", companyID, result.NewRound.Name)
	pr.printf("Share price: %s | Post-money: %s | New total shares: %d\n",
		format.Currency(result.NewSharePrice), format.WholeCurrency(result.PostMoney), result.NewTotalShares)
	pr.printf("Shareholder | Before | After | Dilution\n")
	for _, d := range result.DilutionPreview {
		pr.printf("%s | %s | %s | %s\n", d.ShareholderName, format.Percent(d.BeforePct), format.Percent(d.AfterPct), format.Percent(d.Dilution))
	}
	pr.printf("Founder ownership after round: %s\n", format.Percent(result.NewRound.FounderOwnershipAfter))
	return nil
}

// Waterfall renders the distribution at one exit valuation.
func (pr *Printer) Waterfall(companyID string, result *waterfall.Result) error {
	switch pr.format {
	case constants.OutputFormatJSON:
		return pr.json(result)
	case constants.OutputFormatCSV:
		records := [][]string{{"share class", "shares", "invested", "liquidation", "participation", "common", "total", "moic", "converted"}}
		for _, r := range result.Rows {
			records = append(records, []string{
				r.ShareClass,
				strconv.FormatInt(r.Shares, 10),
				fixed(r.InvestedAmount),
				fixed(r.LiquidationPayout),
				fixed(r.ParticipationPayout),
				fixed(r.CommonPayout),
				fixed(r.TotalProceeds),
				fixed(r.MOIC),
				strconv.FormatBool(r.Converted),
			})
		}
		return pr.csv(records)
	}

	pr.printf("--- Waterfall for %s at %s exit ---\n", companyID, format.WholeCurrency(result.ExitValuation))
	pr.printf("Class | Shares | Invested | Liquidation | Participation | Common | Total | MOIC\n")
	for _, r := range result.Rows {
		class := r.ShareClass
		if r.Converted {
			class += " (converted)"
		}
		pr.printf("%s | %s | %s | %s | %s | %s | %s | %s\n",
			class, format.ShareCount(r.Shares), format.WholeCurrency(r.InvestedAmount),
			format.WholeCurrency(r.LiquidationPayout), format.WholeCurrency(r.ParticipationPayout),
			format.WholeCurrency(r.CommonPayout), format.WholeCurrency(r.TotalProceeds), format.Multiple(r.MOIC))
	}
	irr := NotAvailable
	if result.FundIRR != nil {
		irr = format.Percent(*result.FundIRR)
	}
	pr.printf("%s: %s proceeds | %s MOIC | IRR %s\n",
		constants.FundSeriesKey, format.WholeCurrency(result.FundProceeds), format.Multiple(result.FundMOIC), irr)
	return nil
}

// Sensitivity renders a sweep with one column per class in the given order
// followed by the fund column.
func (pr *Printer) Sensitivity(companyID string, classes []string, points []sensitivity.Point) error {
	if pr.format == constants.OutputFormatJSON {
		return pr.json(points)
	}

	columns := append(append([]string(nil), classes...), constants.FundSeriesKey)
	if pr.format == constants.OutputFormatCSV {
		records := [][]string{append([]string{"exit valuation"}, columns...)}
		for _, pt := range points {
			record := []string{fixed(pt.ExitValuation)}
			for _, c := range columns {
				record = append(record, fixed(pt.Proceeds[c]))
			}
			records = append(records, record)
		}
		return pr.csv(records)
	}

	pr.printf("--- Exit sensitivity for %s ---\n", companyID)
	pr.printf("Exit")
	for _, c := range columns {
		pr.printf(" | %s", c)
	}
	pr.printf("\n")
	for _, pt := range points {
		pr.printf("%s", format.ShortCurrency(pt.ExitValuation))
		for _, c := range columns {
			pr.printf(" | %s", format.ShortCurrency(pt.Proceeds[c]))
		}
		pr.printf("\n")
	}
	return nil
}

// Portfolio renders positions followed by the portfolio summary.
func (pr *Printer) Portfolio(positions []portfolio.Position, summary portfolio.Summary) error {
	switch pr.format {
	case constants.OutputFormatJSON:
		return pr.json(struct {
			Positions []portfolio.Position `json:"positions"`
			Summary   portfolio.Summary    `json:"summary"`
		}{positions, summary})
	case constants.OutputFormatCSV:
		records := [][]string{{"company", "stage", "last round", "check size", "ownership pct", "implied valuation", "unrealized value", "moic"}}
		for _, p := range positions {
			records = append(records, []string{
				p.CompanyName, p.Stage, p.LastRound, fixed(p.CheckSize), fixed(p.OwnershipPct),
				fixed(p.ImpliedValuation), fixed(p.UnrealizedValue), fixed(p.MOIC),
			})
		}
		return pr.csv(records)
	}

	pr.printf("--- Portfolio ---\n")
	pr.printf("Company | Stage | Last round | Check | Ownership | Implied valuation | Fair value | MOIC\n")
	for _, p := range positions {
		pr.printf("%s | %s | %s | %s | %s | %s | %s | %s\n",
			p.CompanyName, p.Stage, p.LastRound, format.WholeCurrency(p.CheckSize), format.Percent(p.OwnershipPct),
			format.ShortCurrency(p.ImpliedValuation), format.WholeCurrency(p.UnrealizedValue), format.Multiple(p.MOIC))
	}
	pr.printf("Deployed: %s | Fair value: %s | Blended MOIC: %s | Avg ownership: %s | Active positions: %d\n",
		format.WholeCurrency(summary.TotalDeployed), format.WholeCurrency(summary.TotalFairValue),
		format.Multiple(summary.BlendedMOIC), format.Percent(summary.AvgOwnership), summary.ActivePositions)
	return nil
}

func (pr *Printer) printf(key message.Reference, args ...any) {
	_, _ = pr.p.Fprintf(pr.w, key, args...)
}

func (pr *Printer) json(v any) error {
	enc := json.NewEncoder(pr.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}

func (pr *Printer) csv(records [][]string) error {
	w := csv.NewWriter(pr.w)
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write CSV output: %w", err)
	}
	return nil
}

func shareholderName(ct captable.CapTable, id string) string {
	if s, ok := ct.Shareholder(id); ok && s.Name != "" {
		return s.Name
	}
	return constants.UnknownShareholderName
}

func fixed(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
