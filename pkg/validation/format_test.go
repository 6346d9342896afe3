package validation

import (
	"strings"
	"testing"

	"github.com/iwvelando/equity-waterfall/pkg/constants"
)

func TestValidateOutputFormat(t *testing.T) {
	accepted := []string{constants.OutputFormatPretty, constants.OutputFormatCSV, constants.OutputFormatJSON}
	for _, format := range accepted {
		if err := ValidateOutputFormat(format); err != nil {
			t.Errorf("ValidateOutputFormat(%q) unexpected error = %v", format, err)
		}
	}

	// Formats are matched exactly; the CLI and config never normalize case.
	rejected := []string{"", "PRETTY", "Json", " csv", "yaml", "xml", "table"}
	for _, format := range rejected {
		err := ValidateOutputFormat(format)
		if err == nil {
			t.Errorf("ValidateOutputFormat(%q) expected error but got none", format)
			continue
		}
		if !strings.Contains(err.Error(), "pretty, csv or json") {
			t.Errorf("ValidateOutputFormat(%q) error %q does not list the accepted formats", format, err)
		}
	}
}
