package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/ynkmn/reactoruq/internal/domain"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

// Fixed trace CSV columns around the parameter columns.
const (
	ColumnChain            = "chain"
	ColumnIteration        = "iteration"
	ColumnLogLikelihood    = "log_likelihood"
	ColumnLogPosterior     = "log_posterior"
	ColumnAccepted         = "accepted"
	ColumnEvaluationFailed = "evaluation_failed"
)

// WriteTraceCSV writes one row per draw, chains in ascending order. All
// traces must share their parameter names.
func WriteTraceCSV(w io.Writer, traces map[int]*domain.Trace) error {
	chains := make([]int, 0, len(traces))
	var names []string
	for c, t := range traces {
		if t == nil {
			continue
		}
		chains = append(chains, c)
		if names == nil {
			names = t.Names
		} else if !slices.Equal(names, t.Names) {
			return apperrors.BadRequest("traces do not share parameter names")
		}
	}
	slices.Sort(chains)

	cw := csv.NewWriter(w)
	header := append([]string{ColumnChain, ColumnIteration}, names...)
	header = append(header, ColumnLogLikelihood, ColumnLogPosterior, ColumnAccepted, ColumnEvaluationFailed)
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for _, c := range chains {
		for _, d := range traces[c].Draws {
			row[0] = strconv.Itoa(c)
			row[1] = strconv.Itoa(d.Iteration)
			for i, v := range d.Values {
				row[2+i] = formatFloat(v)
			}
			k := 2 + len(names)
			row[k] = formatFloat(d.LogLikelihood)
			row[k+1] = formatFloat(d.LogPosterior)
			row[k+2] = strconv.FormatBool(d.Accepted)
			row[k+3] = strconv.FormatBool(d.EvaluationFailed)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ReadTraceCSV parses a file written by WriteTraceCSV into sealed traces.
func ReadTraceCSV(r io.Reader) (map[int]*domain.Trace, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, apperrors.BadRequest("trace csv has no header").WithError(err)
	}
	n := len(header) - 6
	if n < 1 || header[0] != ColumnChain || header[1] != ColumnIteration ||
		header[len(header)-4] != ColumnLogLikelihood || header[len(header)-1] != ColumnEvaluationFailed {
		return nil, apperrors.BadRequest("unrecognised trace csv header")
	}
	names := header[2 : 2+n]

	traces := make(map[int]*domain.Trace)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.BadRequest(fmt.Sprintf("trace csv line %d", line)).WithError(err)
		}
		d, chain, err := parseRow(rec, n)
		if err != nil {
			return nil, apperrors.BadRequest(fmt.Sprintf("trace csv line %d: %v", line, err))
		}
		t, ok := traces[chain]
		if !ok {
			t = domain.NewTrace(names, 0)
			traces[chain] = t
		}
		if err := t.Append(d); err != nil {
			return nil, err
		}
	}
	for _, t := range traces {
		t.Seal()
	}
	return traces, nil
}

func parseRow(rec []string, n int) (domain.Draw, int, error) {
	var d domain.Draw
	chain, err := strconv.Atoi(rec[0])
	if err != nil {
		return d, 0, err
	}
	if d.Iteration, err = strconv.Atoi(rec[1]); err != nil {
		return d, 0, err
	}
	d.Values = make([]float64, n)
	for i := range n {
		if d.Values[i], err = strconv.ParseFloat(rec[2+i], 64); err != nil {
			return d, 0, err
		}
	}
	k := 2 + n
	if d.LogLikelihood, err = strconv.ParseFloat(rec[k], 64); err != nil {
		return d, 0, err
	}
	if d.LogPosterior, err = strconv.ParseFloat(rec[k+1], 64); err != nil {
		return d, 0, err
	}
	if d.Accepted, err = strconv.ParseBool(rec[k+2]); err != nil {
		return d, 0, err
	}
	if d.EvaluationFailed, err = strconv.ParseBool(rec[k+3]); err != nil {
		return d, 0, err
	}
	return d, chain, nil
}
