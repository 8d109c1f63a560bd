package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"nyaymitra/client/internal/remote"
	"nyaymitra/client/internal/util"
)

const previewRunes = 160

// ReportStore archives analyses in Postgres.
type ReportStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db, now: time.Now}
}

func (s *ReportStore) DB() *sql.DB {
	return s.db
}

// Save archives result under a new id.
func (s *ReportStore) Save(ctx context.Context, file remote.File, result remote.AnalysisResult) (Report, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return Report{}, fmt.Errorf("marshal result: %w", err)
	}

	report := Report{
		ID:          util.NewID("rpt"),
		FileName:    file.Name,
		ContentType: file.ContentType,
		SizeBytes:   int64(len(file.Data)),
		RemoteID:    result.ID,
		Result:      result.Clone(),
		CreatedAt:   s.now().UTC(),
	}

	var remoteID sql.NullInt64
	if result.ID != nil {
		remoteID = sql.NullInt64{Int64: int64(*result.ID), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analysis_reports (id, file_name, content_type, size_bytes, remote_id, case_category, summary, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, report.ID, report.FileName, report.ContentType, report.SizeBytes, remoteID,
		result.CaseCategory, preview(result.Summary), payload, report.CreatedAt)
	if err != nil {
		return Report{}, fmt.Errorf("insert report: %w", err)
	}
	return report, nil
}

// List returns the newest reports first.
func (s *ReportStore) List(ctx context.Context, limit int) ([]ReportSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_name, case_category, summary, created_at
		FROM analysis_reports
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	items := make([]ReportSummary, 0)
	for rows.Next() {
		var item ReportSummary
		if err := rows.Scan(&item.ID, &item.FileName, &item.CaseCategory, &item.Preview, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return items, nil
}

// Get loads one report.
func (s *ReportStore) Get(ctx context.Context, id string) (Report, error) {
	var (
		report   Report
		remoteID sql.NullInt64
		payload  []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, file_name, content_type, size_bytes, remote_id, result, created_at
		FROM analysis_reports
		WHERE id = $1
	`, id).Scan(&report.ID, &report.FileName, &report.ContentType, &report.SizeBytes, &remoteID, &payload, &report.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Report{}, fmt.Errorf("get report: %w", err)
	}

	if err := json.Unmarshal(payload, &report.Result); err != nil {
		return Report{}, fmt.Errorf("decode report %s: %w", id, err)
	}
	if remoteID.Valid {
		v := int(remoteID.Int64)
		report.RemoteID = &v
	}
	return report, nil
}

// preview truncates s to previewRunes, on a rune boundary.
func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:previewRunes-1]) + "…"
}

// Ping checks the archive database.
func (s *ReportStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database pool.
func (s *ReportStore) Close() error {
	return s.db.Close()
}
