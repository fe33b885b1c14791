package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/docrelay/internal/models"
	"github.com/desertthunder/docrelay/internal/shared"
)

// DownloadRepository implements models.Repository[*models.BatchReport] for download history.
//
// A batch row carries the summary counts; each attempted file is a row in download_results.
type DownloadRepository struct {
	db *sql.DB
}

var _ models.Repository[*models.BatchReport] = (*DownloadRepository)(nil)

// NewDownloadRepository creates a new DownloadRepository with the given database connection
func NewDownloadRepository(db *sql.DB) *DownloadRepository {
	return &DownloadRepository{db: db}
}

// BatchSummary is a history row without its per-file results.
type BatchSummary struct {
	ID             string
	Sequence       int
	Kind           models.BatchKind
	Requested      []string
	FolderFailures []models.FolderFailure
	Succeeded      int
	Failed         int
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Total returns the number of attempted files.
func (s BatchSummary) Total() int { return s.Succeeded + s.Failed }

// RecordBatch stores a finished report. It satisfies the orchestrator's recorder.
func (r *DownloadRepository) RecordBatch(ctx context.Context, report *models.BatchReport) error {
	return r.Create(ctx, report)
}

// Create inserts the batch and all of its results in one transaction.
func (r *DownloadRepository) Create(ctx context.Context, report *models.BatchReport) error {
	if err := report.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	requested, err := json.Marshal(report.Requested)
	if err != nil {
		return fmt.Errorf("failed to encode requested ids: %w", err)
	}

	var folderFailures []byte
	if len(report.FolderFailures) > 0 {
		if folderFailures, err = json.Marshal(report.FolderFailures); err != nil {
			return fmt.Errorf("failed to encode folder failures: %w", err)
		}
	}

	finished := report.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := nextSequence(ctx, tx, "download_batches")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO download_batches (id, sequence, kind, requested, folder_failures, succeeded, failed, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.BatchID,
		sequence,
		string(report.Kind),
		string(requested),
		string(folderFailures),
		report.Succeeded(),
		report.Failed(),
		report.StartedAt.UTC(),
		finished.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}

	for _, res := range report.Results {
		seq, err := nextSequence(ctx, tx, "download_results")
		if err != nil {
			return fmt.Errorf("failed to generate sequence: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO download_results (id, sequence, batch_id, file_id, name, local_path, outcome, reason, message, bytes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			shared.GenerateID(),
			seq,
			report.BatchID,
			res.FileID,
			res.Name,
			res.LocalPath,
			string(res.Outcome),
			res.Reason,
			res.Message,
			res.Bytes,
			finished.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert result for %s: %w", res.FileID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Get retrieves a batch and its results in the order they were attempted.
func (r *DownloadRepository) Get(ctx context.Context, id string) (*models.BatchReport, error) {
	query := `
		SELECT id, sequence, kind, requested, folder_failures, succeeded, failed, started_at, finished_at
		FROM download_batches
		WHERE id = ?
	`

	summary, err := scanSummary(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %s: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	results, err := r.results(ctx, id)
	if err != nil {
		return nil, err
	}
	return summary.report(results), nil
}

// Delete removes a batch; its results go with it.
func (r *DownloadRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM download_batches WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("batch %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

// List retrieves full reports, newest first.
//
// Criteria: "kind" (string or [models.BatchKind]) and "limit" (int).
func (r *DownloadRepository) List(ctx context.Context, criteria map[string]any) ([]*models.BatchReport, error) {
	summaries, err := r.Summaries(ctx, criteria)
	if err != nil {
		return nil, err
	}

	reports := make([]*models.BatchReport, 0, len(summaries))
	for _, s := range summaries {
		results, err := r.results(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		reports = append(reports, s.report(results))
	}
	return reports, nil
}

// Summaries lists batches without loading their results, newest first.
func (r *DownloadRepository) Summaries(ctx context.Context, criteria map[string]any) ([]BatchSummary, error) {
	query := `
		SELECT id, sequence, kind, requested, folder_failures, succeeded, failed, started_at, finished_at
		FROM download_batches
		WHERE 1 = 1
	`

	args := []any{}

	switch kind := criteria["kind"].(type) {
	case string:
		if kind != "" {
			query += " AND kind = ?"
			args = append(args, kind)
		}
	case models.BatchKind:
		if kind != "" {
			query += " AND kind = ?"
			args = append(args, string(kind))
		}
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var summaries []BatchSummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return summaries, nil
}

// FileHistory returns every recorded attempt for fileID, newest first.
func (r *DownloadRepository) FileHistory(ctx context.Context, fileID string) ([]models.DownloadResult, error) {
	query := `
		SELECT file_id, name, local_path, outcome, reason, message, bytes
		FROM download_results
		WHERE file_id = ?
		ORDER BY sequence DESC
	`
	return r.queryResults(ctx, query, fileID)
}

func (r *DownloadRepository) results(ctx context.Context, batchID string) ([]models.DownloadResult, error) {
	query := `
		SELECT file_id, name, local_path, outcome, reason, message, bytes
		FROM download_results
		WHERE batch_id = ?
		ORDER BY sequence ASC
	`
	return r.queryResults(ctx, query, batchID)
}

func (r *DownloadRepository) queryResults(ctx context.Context, query string, arg any) ([]models.DownloadResult, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	results := []models.DownloadResult{}
	for rows.Next() {
		var (
			res     models.DownloadResult
			outcome string
		)
		if err := rows.Scan(&res.FileID, &res.Name, &res.LocalPath, &outcome, &res.Reason, &res.Message, &res.Bytes); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res.Outcome = models.Outcome(outcome)
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return results, nil
}

// scanner is satisfied by [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (BatchSummary, error) {
	var (
		s              BatchSummary
		kind           string
		requested      string
		folderFailures string
	)

	err := row.Scan(&s.ID, &s.Sequence, &kind, &requested, &folderFailures, &s.Succeeded, &s.Failed, &s.StartedAt, &s.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, err
	}
	if err != nil {
		return s, fmt.Errorf("failed to scan batch: %w", err)
	}

	s.Kind = models.BatchKind(kind)
	if requested != "" {
		if err := json.Unmarshal([]byte(requested), &s.Requested); err != nil {
			return s, fmt.Errorf("failed to decode requested ids: %w", err)
		}
	}
	if folderFailures != "" {
		if err := json.Unmarshal([]byte(folderFailures), &s.FolderFailures); err != nil {
			return s, fmt.Errorf("failed to decode folder failures: %w", err)
		}
	}
	return s, nil
}

func (s BatchSummary) report(results []models.DownloadResult) *models.BatchReport {
	return &models.BatchReport{
		BatchID:        s.ID,
		Kind:           s.Kind,
		Requested:      s.Requested,
		Results:        results,
		FolderFailures: s.FolderFailures,
		StartedAt:      s.StartedAt,
		FinishedAt:     s.FinishedAt,
	}
}
