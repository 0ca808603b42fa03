// Package validation holds the error taxonomy of the evaluator and the
// precondition checks that run before any simulation work starts.
package validation

import (
	"fmt"
	"slices"

	"github.com/iwvelando/portfolio-evaluator/pkg/constants"
)

var outputFormats = []string{constants.OutputFormatPretty, constants.OutputFormatCSV}

// ValidateOutputFormat rejects anything but the pretty and csv result
// renderings with ErrConfiguration.
func ValidateOutputFormat(format string) error {
	if !slices.Contains(outputFormats, format) {
		return fmt.Errorf("%w: output format %q is not one of %v", ErrConfiguration, format, outputFormats)
	}
	return nil
}
