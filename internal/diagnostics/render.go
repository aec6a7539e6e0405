package diagnostics

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ynkmn/reactoruq/internal/domain"
)

// Convergence thresholds used by Warnings.
const (
	MaxRHat        = 1.01
	MinESSPerChain = 100
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#16858E"))
)

// Render writes the parameter table followed by the chain table.
func Render(w io.Writer, s *domain.Summary) error {
	lo, hi := hdiLabels(s.HDIProb)
	params := newTable("parameter", "mean", "sd", lo, hi, "mcse", "ess_bulk", "r_hat")
	for _, p := range s.Parameters {
		params.Row(p.Name,
			format(p.Mean, 3), format(p.SD, 3),
			format(p.HDILower, 3), format(p.HDIUpper, 3),
			format(p.MCSE, 4), format(p.ESS, 0), format(p.RHat, 3),
		)
	}

	chains := newTable("chain", "state", "draws", "acceptance")
	for _, c := range s.Chains {
		state := string(c.State)
		if state == "" {
			state = "-"
		}
		chains.Row(strconv.Itoa(c.Chain), state, strconv.Itoa(c.Draws), format(c.AcceptanceRate, 3))
	}

	_, err := fmt.Fprintf(w, "%s\n%s\n", params.Render(), chains.Render())
	return err
}

// RenderPredictive writes one row per observation with its predictive band.
func RenderPredictive(w io.Writer, s *domain.PredictiveSummary) error {
	t := newTable("obs", "observed", "mean", "sd", "lower", "upper")
	for _, p := range s.Observations {
		t.Row(strconv.Itoa(p.Index),
			format(p.Observed, 4), format(p.Mean, 4), format(p.SD, 4),
			format(p.Lower, 4), format(p.Upper, 4),
		)
	}
	_, err := fmt.Fprintf(w, "%s\n%d of %d draws evaluated (seed %d), %d/%d observations inside mean -/+ 2 sd\n",
		t.Render(), s.Evaluated, s.Requested, s.Seed, s.Covered(), len(s.Observations))
	return err
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func hdiLabels(prob float64) (string, string) {
	tail := (1 - prob) / 2 * 100
	return "hdi_" + strconv.FormatFloat(tail, 'g', 3, 64) + "%",
		"hdi_" + strconv.FormatFloat(100-tail, 'g', 3, 64) + "%"
}

func format(v float64, prec int) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// Warnings lists parameters whose chains look unconverged.
func Warnings(s *domain.Summary) []string {
	chains := 0
	for _, c := range s.Chains {
		if c.Draws > 0 {
			chains++
		}
	}
	var out []string
	for _, p := range s.Parameters {
		switch {
		case math.IsNaN(p.RHat):
			if chains > 0 {
				out = append(out, p.Name+": r_hat could not be computed")
			}
		case p.RHat > MaxRHat:
			out = append(out, fmt.Sprintf("%s: r_hat %.3f exceeds %.2f", p.Name, p.RHat, MaxRHat))
		}
		if minESS := float64(MinESSPerChain * chains); !math.IsNaN(p.ESS) && p.ESS < minESS {
			out = append(out, fmt.Sprintf("%s: bulk ess %.0f is below %.0f", p.Name, p.ESS, minESS))
		}
	}
	for _, c := range s.Chains {
		if c.State == domain.ChainStateAborted {
			out = append(out, fmt.Sprintf("chain %d aborted after %d draws", c.Chain, c.Draws))
		}
	}
	return out
}
