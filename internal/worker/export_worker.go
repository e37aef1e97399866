package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"expenses/internal/amqp"
	"expenses/internal/cache"
	"expenses/internal/core"
)

// RecordReader loads a saved week.
type RecordReader interface {
	Get(ctx context.Context, namespace, weekEnding string) (*core.ExpenseRecord, bool, error)
}

// SheetExporter fills a spreadsheet copy and returns its id.
type SheetExporter interface {
	Export(ctx context.Context, rec core.ExpenseRecord) (string, error)
}

// exportedTTL bounds how long a finished export is remembered for redeliveries.
const exportedTTL = 24 * time.Hour

// ExportWorker turns week events into spreadsheet exports.
type ExportWorker struct {
	records  RecordReader
	exporter SheetExporter
	exported *cache.LRU[string]
}

func NewExportWorker(records RecordReader, exporter SheetExporter, memory int) *ExportWorker {
	return &ExportWorker{
		records:  records,
		exporter: exporter,
		exported: cache.NewLRU[string](memory, exportedTTL),
	}
}

// Cache exposes the export memory so the caller can register it for cleanup.
func (w *ExportWorker) Cache() *cache.LRU[string] { return w.exported }

// HandleWeekEvent processes one event. A returned error makes the
// consumer requeue the delivery.
func (w *ExportWorker) HandleWeekEvent(ctx context.Context, e *amqp.WeekEvent) error {
	slog.InfoContext(ctx, "Processing week event",
		"id", e.ID,
		"op", e.Op,
		"sync", e.Namespace,
		"weekEnding", e.WeekEnding)

	switch e.Op {
	case amqp.OpDelete:
		// Exported copies are owned by whoever received them.
		slog.InfoContext(ctx, "Week deleted, nothing to export", "id", e.ID)
		return nil
	case amqp.OpPut:
		return w.export(ctx, e)
	default:
		return fmt.Errorf("unknown op %q", e.Op)
	}
}

func (w *ExportWorker) export(ctx context.Context, e *amqp.WeekEvent) error {
	rec, ok, err := w.records.Get(ctx, e.Namespace, e.WeekEnding)
	if err != nil {
		return fmt.Errorf("load week: %w", err)
	}
	if !ok {
		slog.WarnContext(ctx, "Week no longer exists, skipping export",
			"sync", e.Namespace,
			"weekEnding", e.WeekEnding)
		return nil
	}
	// A later write has its own event; export only once per version.
	if e.UpdatedAt != "" && rec.UpdatedAt > e.UpdatedAt {
		slog.InfoContext(ctx, "Skipping stale week event",
			"id", e.ID,
			"eventUpdatedAt", e.UpdatedAt,
			"recordUpdatedAt", rec.UpdatedAt)
		return nil
	}

	version := core.RecordKey(rec.Namespace, rec.WeekEnding) + "@" + rec.UpdatedAt
	if id, done := w.exported.Get(version); done {
		slog.InfoContext(ctx, "Week already exported", "version", version, "spreadsheetId", id)
		return nil
	}

	start := time.Now()
	id, err := w.exporter.Export(ctx, *rec)
	if err != nil {
		return fmt.Errorf("export week: %w", err)
	}
	w.exported.Set(version, id)

	slog.InfoContext(ctx, "Exported week",
		"sync", rec.Namespace,
		"weekEnding", rec.WeekEnding,
		"spreadsheetId", id,
		"duration", time.Since(start))
	return nil
}
