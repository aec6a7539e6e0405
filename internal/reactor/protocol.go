package reactor

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ynkmn/reactoruq/internal/dataset"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

// FileRequest describes one file-protocol evaluation: coefficients are read
// from InputPath, one per line, input temperatures from the CSV table at
// ExogenousPath, and predictions written to OutputPath.
type FileRequest struct {
	InputPath     string
	ExogenousPath string
	OutputPath    string
	Binding       Binding
}

// RunFile evaluates the model through files, the way an external code would.
func (m Model) RunFile(req FileRequest) error {
	coef, err := ReadCoefficients(req.InputPath)
	if err != nil {
		return err
	}
	if len(coef) != 2 {
		return apperrors.BadRequest(fmt.Sprintf("expected 2 coefficients in %s, got %d", req.InputPath, len(coef)))
	}

	tbl, err := dataset.Load(req.ExogenousPath)
	if err != nil {
		return err
	}
	binding := req.Binding
	if binding == (Binding{}) {
		binding = DefaultBinding
	}
	fuel, err := tbl.Column(binding.Fuel)
	if err != nil {
		return err
	}
	coolant, err := tbl.Column(binding.Coolant)
	if err != nil {
		return err
	}

	return writeReactivity(req.OutputPath, m.Predict(coef[0], coef[1], fuel, coolant))
}

// ReadCoefficients parses a parameter file with one number per line.
func ReadCoefficients(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.BadRequest("cannot open parameter file").WithError(err)
	}
	defer f.Close()

	var out []float64
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, apperrors.BadRequest(fmt.Sprintf("%s:%d: invalid coefficient %q", path, line, text))
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, apperrors.BadRequest("cannot read parameter file").WithError(err)
	}
	return out, nil
}

func writeReactivity(path string, values []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return apperrors.Internal("cannot create output file").WithError(err)
	}
	cw := csv.NewWriter(f)
	_ = cw.Write([]string{ColumnReactivity})
	for _, v := range values {
		_ = cw.Write([]string{strconv.FormatFloat(v, 'g', -1, 64)})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return apperrors.Internal("cannot write output file").WithError(err)
	}
	return f.Close()
}
