package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/ynkmn/reactoruq/internal/domain"
	"github.com/ynkmn/reactoruq/internal/pkg/logger"
)

// Result locates the objects written for one run
type Result struct {
	TraceURI   string `json:"traceUri"`
	SummaryURI string `json:"summaryUri,omitempty"`
}

// Exporter writes a run's trace CSV and summary JSON to a store.
type Exporter struct {
	store  Store
	logger *zap.Logger
}

// NewExporter creates a new exporter
func NewExporter(store Store, log *zap.Logger) *Exporter {
	return &Exporter{store: store, logger: logger.OrNop(log)}
}

// Keys returns the object keys used for a run
func Keys(runID string) (trace, summary string) {
	return "runs/" + runID + "/trace.csv", "runs/" + runID + "/summary.json"
}

// Export writes the traces and, when non-nil, the summary.
func (e *Exporter) Export(ctx context.Context, runID string, traces map[int]*domain.Trace, summary *domain.Summary) (*Result, error) {
	traceKey, summaryKey := Keys(runID)

	var buf bytes.Buffer
	if err := WriteTraceCSV(&buf, traces); err != nil {
		return nil, fmt.Errorf("failed to encode trace: %w", err)
	}
	res := &Result{}
	var err error
	if res.TraceURI, err = e.store.Put(ctx, traceKey, buf.Bytes(), "text/csv"); err != nil {
		return nil, err
	}

	if summary != nil {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode summary: %w", err)
		}
		if res.SummaryURI, err = e.store.Put(ctx, summaryKey, data, "application/json"); err != nil {
			return nil, err
		}
	}

	e.logger.Info("run exported",
		zap.String("run_id", runID),
		zap.String("trace", res.TraceURI),
		zap.Int("size", buf.Len()),
	)
	return res, nil
}
