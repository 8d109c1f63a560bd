package store

import (
	"errors"
	"time"

	"nyaymitra/client/internal/remote"
)

// ErrNotFound is returned when a report id does not exist.
var ErrNotFound = errors.New("not found")

// Report is an archived analysis.
type Report struct {
	ID          string                `json:"id"`
	FileName    string                `json:"fileName"`
	ContentType string                `json:"contentType"`
	SizeBytes   int64                 `json:"sizeBytes"`
	RemoteID    *int                  `json:"remoteId,omitempty"`
	Result      remote.AnalysisResult `json:"result"`
	CreatedAt   time.Time             `json:"createdAt"`
}

// ReportSummary is a list entry for the archive.
type ReportSummary struct {
	ID           string    `json:"id"`
	FileName     string    `json:"fileName"`
	CaseCategory string    `json:"caseCategory,omitempty"`
	Preview      string    `json:"preview"`
	CreatedAt    time.Time `json:"createdAt"`
}
