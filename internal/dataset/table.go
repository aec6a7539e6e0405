// Package dataset reads and writes the numeric tables holding observed data
// and exogenous inputs.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ynkmn/reactoruq/internal/domain"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

// Table is a set of equally long named float columns.
type Table struct {
	columns []string
	data    map[string][]float64
	rows    int
}

// NewTable builds a table from columns given in order.
func NewTable(columns []string, data map[string][]float64) (*Table, error) {
	t := &Table{
		columns: append([]string(nil), columns...),
		data:    make(map[string][]float64, len(columns)),
		rows:    -1,
	}
	for _, c := range columns {
		col, ok := data[c]
		if !ok {
			return nil, apperrors.Configuration("column " + c + " not provided")
		}
		if _, dup := t.data[c]; dup {
			return nil, apperrors.Configuration("duplicate column " + c)
		}
		if t.rows >= 0 && len(col) != t.rows {
			return nil, apperrors.Configuration(fmt.Sprintf("column %s has %d rows, expected %d", c, len(col), t.rows))
		}
		t.rows = len(col)
		t.data[c] = append([]float64(nil), col...)
	}
	if t.rows < 0 {
		t.rows = 0
	}
	return t, nil
}

// Columns returns column names in file order
func (t *Table) Columns() []string {
	return t.columns
}

// Rows returns the number of data rows
func (t *Table) Rows() int {
	return t.rows
}

// Column returns a named column. The slice must not be modified.
func (t *Table) Column(name string) ([]float64, error) {
	col, ok := t.data[name]
	if !ok {
		return nil, apperrors.Configuration("dataset has no column " + name).
			WithDetail("columns", strings.Join(t.columns, ","))
	}
	return col, nil
}

// Observed copies a column out as the observation vector.
func (t *Table) Observed(name string) (domain.ObservedVector, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	if len(col) == 0 {
		return nil, apperrors.Configuration("observed column " + name + " is empty")
	}
	return append(domain.ObservedVector(nil), col...), nil
}

// Exogenous selects columns as fixed model inputs.
func (t *Table) Exogenous(names []string) (*domain.ExogenousInputs, error) {
	data := make(map[string][]float64, len(names))
	for _, n := range names {
		col, err := t.Column(n)
		if err != nil {
			return nil, err
		}
		data[n] = col
	}
	return domain.NewExogenousInputs(names, data)
}

// Read parses a CSV table with a header row. Lines starting with '#' and
// blank lines are skipped. Every value must be a finite number.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, apperrors.Configuration("dataset is empty")
	}
	if err != nil {
		return nil, apperrors.Configuration("cannot parse dataset header").WithError(err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	data := make(map[string][]float64, len(header))
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.Configuration("cannot parse dataset").WithError(err)
		}
		for i, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, apperrors.Configuration(
					fmt.Sprintf("line %d column %s: invalid value %q", line, header[i], field))
			}
			data[header[i]] = append(data[header[i]], v)
		}
	}
	return NewTable(header, data)
}

// Load reads a CSV table from path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Configuration("cannot open dataset " + path).WithError(err)
	}
	defer f.Close()
	return Read(f)
}

// Write emits the table as CSV with a header row.
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.columns); err != nil {
		return err
	}
	row := make([]string, len(t.columns))
	for i := 0; i < t.rows; i++ {
		for j, c := range t.columns {
			row[j] = strconv.FormatFloat(t.data[c][i], 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Save writes the table to path, creating parent directories.
func (t *Table) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.Internal("cannot create dataset directory").WithError(err)
	}
	f, err := os.Create(path)
	if err != nil {
		return apperrors.Internal("cannot create dataset " + path).WithError(err)
	}
	if err := t.Write(f); err != nil {
		f.Close()
		return apperrors.Internal("cannot write dataset " + path).WithError(err)
	}
	return f.Close()
}
