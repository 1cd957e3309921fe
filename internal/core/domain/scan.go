package domain

import "time"

type ScanState string

const (
	ScanCreated   ScanState = "created"
	ScanSubmitted ScanState = "submitted"
	ScanPolling   ScanState = "polling"
	ScanSucceeded ScanState = "succeeded"
	ScanFailed    ScanState = "failed"
	ScanTimedOut  ScanState = "timed_out"
)

// Terminal reports whether no further transitions are possible.
func (s ScanState) Terminal() bool {
	switch s {
	case ScanSucceeded, ScanFailed, ScanTimedOut:
		return true
	default:
		return false
	}
}

// ScanJob is one user-initiated receipt scan. Image is loaded from object
// storage for the lifetime of a run and is never persisted in the job row.
type ScanJob struct {
	ID              string        `json:"id"`
	Filename        string        `json:"filename"`
	MimeType        string        `json:"mime_type"`
	StorageKey      string        `json:"storage_key"`
	Image           []byte        `json:"-"`
	SubmittedAt     time.Time     `json:"submitted_at"`
	OperationHandle string        `json:"operation_handle,omitempty"`
	Attempt         int           `json:"attempt"`
	State           ScanState     `json:"state"`
	Error           string        `json:"error,omitempty"`
	PurchaseDate    *time.Time    `json:"purchase_date,omitempty"`
	Items           []ScannedItem `json:"items,omitempty"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

type AnalysisStatus string

const (
	AnalysisRunning   AnalysisStatus = "running"
	AnalysisSucceeded AnalysisStatus = "succeeded"
	AnalysisFailed    AnalysisStatus = "failed"
)

type ScannedLine struct {
	RawName string `json:"raw_name"`
}

// AnalysisResult is the decoded poll response. PurchaseDate and Items are
// only populated once Status is AnalysisSucceeded.
type AnalysisResult struct {
	Status       AnalysisStatus `json:"status"`
	PurchaseDate *time.Time     `json:"purchase_date,omitempty"`
	Items        []ScannedLine  `json:"items"`
}

// ScannedItem is what the pipeline derived for a single receipt line.
type ScannedItem struct {
	RawName     string    `json:"raw_name"`
	MatchedName string    `json:"matched_name,omitempty"`
	Category    string    `json:"category,omitempty"`
	DueDate     time.Time `json:"due_date"`
	Scheduled   bool      `json:"scheduled"`
	Error       string    `json:"error,omitempty"`
}
