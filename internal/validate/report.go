package validate

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"strategylab/internal/domain"
)

// WriteReport renders a plain-text summary of validations and comparisons.
func WriteReport(w io.Writer, results []*domain.ValidationResult, comparisons []*domain.StrategyComparison) error {
	counts := make(map[domain.ValidationStatus]int)
	for _, r := range results {
		if r != nil {
			counts[r.Status]++
		}
	}

	var b strings.Builder
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "STRATEGY VALIDATION REPORT")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "strategies: %d  passed: %d  warning: %d  failed: %d  insufficient data: %d\n\n",
		len(results),
		counts[domain.StatusPassed],
		counts[domain.StatusWarning],
		counts[domain.StatusFailed],
		counts[domain.StatusInsufficientData],
	)

	for _, r := range results {
		if r == nil {
			continue
		}
		fmt.Fprintf(&b, "%s  [%s]  score %.1f\n", r.StrategyName, r.Status, r.OverallScore())
		for _, m := range r.Messages {
			fmt.Fprintf(&b, "  %s\n", m)
		}
		for _, wmsg := range r.Warnings {
			fmt.Fprintf(&b, "  warning: %s\n", wmsg)
		}
		fmt.Fprintln(&b)
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	if len(comparisons) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(w, "AI VS TRADITIONAL\n%s\n", strings.Repeat("-", 72)); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tEFFECTIVENESS\tRETURN\tSHARPE\tDRAWDOWN\tWIN RATE\tP-VALUE\tSIGNIFICANT")
	for _, c := range comparisons {
		if c == nil {
			continue
		}
		fmt.Fprintf(tw, "%s\t%.1f\t%+.2f%%\t%+.2f\t%+.2f%%\t%+.2f%%\t%.4f\t%s\n",
			c.StrategyName,
			c.AIEffectivenessScore,
			c.ReturnImprovement,
			c.SharpeImprovement,
			c.DrawdownImprovement,
			c.WinRateImprovement,
			c.PValue,
			yesNo(c.StatisticalSignificance),
		)
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
