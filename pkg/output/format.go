// Package output provides utilities for formatting and displaying evaluation results.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/iwvelando/portfolio-evaluator/internal/model"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// PrettyFormat writes a human-readable rather than machine-readable table.
// names is aligned with the per-portfolio averages of result.
func PrettyFormat(w io.Writer, names []string, result model.PopulationEvaluationResult) {
	p := message.NewPrinter(language.English)

	_, _ = fmt.Fprintf(w, "--- Population summary ---\n")
	_, _ = p.Fprintf(w, "Best return          | $%.2f\n", result.BestReturn)
	_, _ = p.Fprintf(w, "Average return       | $%.2f\n", result.PopulationAverageReturn)
	_, _ = p.Fprintf(w, "Lowest volatility    | %.2f%%\n", result.BestVolatility*100)
	_, _ = p.Fprintf(w, "Average volatility   | %.2f%%\n", result.PopulationAverageVolatility*100)
	_, _ = p.Fprintf(w, "Best Sharpe ratio    | %.4f\n", result.BestSharpe)
	_, _ = p.Fprintf(w, "Average Sharpe ratio | %.4f\n", result.PopulationAverageSharpe)

	_, _ = fmt.Fprintf(w, "\n--- Portfolios ---\n")
	_, _ = fmt.Fprintf(w, "Portfolio | Avg. Return | Avg. Volatility | Avg. Sharpe\n")
	_, _ = fmt.Fprintf(w, "_________ | ___________ | _______________ | ___________\n")
	for i := range result.AverageReturns {
		_, _ = p.Fprintf(w, "%s | $%.2f | %.2f%% | %.4f\n",
			nameAt(names, i),
			result.AverageReturns[i],
			valueAt(result.AverageVolatilities, i)*100,
			valueAt(result.AverageSharpeRatios, i),
		)
	}
}

// CsvFormat writes one comma-separated row per portfolio.
func CsvFormat(w io.Writer, names []string, result model.PopulationEvaluationResult) {
	_, _ = io.WriteString(w, CsvString(names, result))
}

// CsvString renders the per-portfolio averages as CSV.
func CsvString(names []string, result model.PopulationEvaluationResult) string {
	var b strings.Builder
	b.WriteString(`"portfolio","average return","average volatility","average sharpe"`)
	b.WriteString("\n")
	for i := range result.AverageReturns {
		fmt.Fprintf(&b, `"%s","%.6f","%.6f","%.6f"`,
			strings.ReplaceAll(nameAt(names, i), `"`, `""`),
			result.AverageReturns[i],
			valueAt(result.AverageVolatilities, i),
			valueAt(result.AverageSharpeRatios, i),
		)
		b.WriteString("\n")
	}
	return b.String()
}

func nameAt(names []string, i int) string {
	if i < len(names) && names[i] != "" {
		return names[i]
	}
	return fmt.Sprintf("portfolio-%d", i+1)
}

func valueAt(values []float64, i int) float64 {
	if i < len(values) {
		return values[i]
	}
	return 0
}
