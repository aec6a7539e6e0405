package evaluator

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ynkmn/reactoruq/internal/domain"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

// DefaultPrecision is the number of decimals written per parameter
const DefaultPrecision = 10

var placeholderRE = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// WriteParameters writes one parameter value per line in vector order.
func WriteParameters(w io.Writer, params domain.ParameterVector, precision int) error {
	bw := bufio.NewWriter(w)
	for _, v := range params.Values {
		if _, err := bw.WriteString(strconv.FormatFloat(v, 'f', precision, 64)); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// InputTemplate is an input deck with {name} placeholders for parameters.
type InputTemplate struct {
	text   string
	fields []string
}

// ParseInputTemplate checks that every placeholder names a known parameter.
func ParseInputTemplate(text string, names []string) (*InputTemplate, error) {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	var fields []string
	for _, m := range placeholderRE.FindAllStringSubmatch(text, -1) {
		if !known[m[1]] {
			return nil, apperrors.Configuration("input template references unknown parameter " + m[1])
		}
		fields = append(fields, m[1])
	}
	if len(fields) == 0 {
		return nil, apperrors.Configuration("input template has no parameter placeholders")
	}
	return &InputTemplate{text: text, fields: fields}, nil
}

// Render substitutes parameter values into the template.
func (t *InputTemplate) Render(params domain.ParameterVector, precision int) string {
	return placeholderRE.ReplaceAllStringFunc(t.text, func(m string) string {
		v, ok := params.Get(m[1 : len(m)-1])
		if !ok {
			return m
		}
		return strconv.FormatFloat(v, 'f', precision, 64)
	})
}

// WriteExogenous writes the exogenous inputs as a CSV table with a header.
func WriteExogenous(w io.Writer, inputs *domain.ExogenousInputs) error {
	cw := csv.NewWriter(w)
	cols := inputs.Columns()
	if err := cw.Write(cols); err != nil {
		return err
	}
	row := make([]string, len(cols))
	for i := 0; i < inputs.Rows(); i++ {
		for j, c := range cols {
			col, _ := inputs.Column(c)
			row[j] = strconv.FormatFloat(col[i], 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// OutputFormat describes how to read a predicted vector from an output artifact.
type OutputFormat struct {
	// Column selects a column by header name. Empty selects the first column
	// and makes the header optional.
	Column string
	// Expected is the required number of rows; 0 disables the check.
	Expected int
}

// ReadPrediction parses a comma-separated output artifact. Blank lines are
// skipped. A first row that does not parse as a number is treated as a header.
func ReadPrediction(r io.Reader, format OutputFormat) (domain.PredictedVector, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	col := 0
	first := true
	var pred domain.PredictedVector

	for line := 1; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.OutputMalformed("cannot parse output artifact").WithError(err)
		}

		if first {
			first = false
			idx, isHeader, err := headerIndex(record, format.Column)
			if err != nil {
				return nil, err
			}
			col = idx
			if isHeader {
				continue
			}
		}

		if col >= len(record) {
			return nil, apperrors.OutputMalformed(fmt.Sprintf("row %d has %d columns, need column %d", line, len(record), col+1))
		}
		v, err := parseValue(record[col])
		if err != nil {
			return nil, apperrors.OutputMalformed(fmt.Sprintf("row %d: %v", line, err))
		}
		pred = append(pred, v)
	}

	if err := checkLength(pred, format.Expected); err != nil {
		return nil, err
	}
	return pred, nil
}

func headerIndex(record []string, column string) (int, bool, error) {
	numeric := false
	if len(record) > 0 {
		_, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		numeric = err == nil
	}

	if column == "" {
		return 0, !numeric, nil
	}
	if numeric {
		return 0, false, apperrors.OutputMalformed("output artifact has no header, cannot select column " + column)
	}
	for i, h := range record {
		if strings.TrimSpace(h) == column {
			return i, true, nil
		}
	}
	return 0, false, apperrors.OutputMalformed("output artifact has no column " + column)
}

func parseValue(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}
