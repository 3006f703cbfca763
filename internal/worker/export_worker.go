package worker

import (
	"context"
	"fmt"
	"log/slog"

	"ritmo/internal/amqp"
	"ritmo/internal/sheets"
	"ritmo/internal/storage"
)

// ExportWorker writes recorded completions to the spreadsheet journal. It is
// fed by AMQP messages and backfills from the database, so a lost message
// never loses a journal row.
type ExportWorker struct {
	storage   *storage.SQLiteRepository
	journal   sheets.JournalWriter
	batchSize int
}

func NewExportWorker(storage *storage.SQLiteRepository, journal sheets.JournalWriter, batchSize int) *ExportWorker {
	return &ExportWorker{
		storage:   storage,
		journal:   journal,
		batchSize: batchSize,
	}
}

// HandleCompletionMessage processes a single completion-recorded message from
// AMQP. The message carries only the completion ID; the row is loaded fresh.
func (w *ExportWorker) HandleCompletionMessage(ctx context.Context, msg *amqp.CompletionRecordedMessage) error {
	slog.InfoContext(ctx, "Processing completion message", "id", msg.ID)

	row, err := w.storage.GetJournalRow(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("get journal row: %w", err)
	}

	if err := w.exportRow(ctx, row); err != nil {
		return fmt.Errorf("export completion: %w", err)
	}

	return nil
}

// ProcessPendingExports exports completions that never made it to the
// journal. This is a backup mechanism in case AMQP messages are lost.
func (w *ExportWorker) ProcessPendingExports(ctx context.Context) error {
	pending, err := w.storage.ListPendingExport(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list pending exports: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	for _, row := range pending {
		if err := w.exportRow(ctx, row); err != nil {
			slog.ErrorContext(ctx, "Failed to export completion", "id", row.ID, "error", err)
			continue
		}
	}

	return nil
}

// StartupExportCheck exports any pending completions at worker startup,
// recovering from missed AMQP messages or worker downtime.
func (w *ExportWorker) StartupExportCheck(ctx context.Context) error {
	// Larger batch for the startup sweep
	pending, err := w.storage.ListPendingExport(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list pending exports for startup check: %w", err)
	}

	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending exports on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0

	for _, row := range pending {
		if err := w.exportRow(ctx, row); err != nil {
			slog.ErrorContext(ctx, "Failed to export completion during startup",
				"id", row.ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup export completed",
		"total", len(pending),
		"exported", successCount,
		"errors", errorCount)

	return nil
}

func (w *ExportWorker) exportRow(ctx context.Context, row storage.JournalRow) error {
	entry := sheets.JournalEntry{
		CompletionID: row.ID,
		GoalTitle:    row.Title,
		CompletedAt:  row.CompletedAt,
	}

	ref, err := w.journal.Append(ctx, entry)
	if err != nil {
		if markErr := w.storage.MarkExportError(ctx, row.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "id", row.ID, "error", markErr)
		}
		return fmt.Errorf("append to journal: %w", err)
	}

	if err := w.storage.MarkExported(ctx, row.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as exported", "id", row.ID, "error", err)
		// The append itself worked, so the journal is ahead of the flag.
	}

	slog.InfoContext(ctx, "Exported completion to journal",
		"id", row.ID,
		"journal_ref", ref,
		"goal_title", row.Title)

	return nil
}
