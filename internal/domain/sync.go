package domain

import "time"

// TableStatus is the outcome of one table in a pipeline run.
type TableStatus string

// Table statuses.
const (
	TableCompleted  TableStatus = "completed"
	TableSkipped    TableStatus = "skipped"
	TableFailed     TableStatus = "failed"     // extraction failed, nothing loaded
	TableIncomplete TableStatus = "incomplete" // load aborted mid-table, transaction rolled back
)

// RunMode names an orchestrator entry point.
type RunMode string

// Run modes.
const (
	ModeProvision    RunMode = "provision"
	ModeSyncSelected RunMode = "sync-selected"
	ModeSyncAll      RunMode = "sync-all"
	ModeFullSync     RunMode = "full-sync"
	ModeDropAll      RunMode = "drop-all"
	ModeTruncateAll  RunMode = "truncate-all"
	ModeTruncateOne  RunMode = "truncate-one"
)

// LoadMode selects how rows are written.
type LoadMode string

// Load modes.
const (
	LoadAppend LoadMode = "append"
	LoadUpsert LoadMode = "upsert"
)

// RowError identifies a failed row and the reason. Row is empty for
// table-level failures.
type RowError struct {
	Row     string `json:"row,omitempty"`
	Message string `json:"message"`
}

// SyncResult is the per-table outcome of the row pipeline.
type SyncResult struct {
	TableName   string        `json:"table_name"`
	Status      TableStatus   `json:"status"`
	SkipReason  string        `json:"skip_reason,omitempty"`
	RowsRead    int           `json:"rows_read"`
	RowsWritten int           `json:"rows_written"`
	Errors      []RowError    `json:"errors"`
	Elapsed     time.Duration `json:"elapsed_ns"`
}

// RowsFailed returns the number of row-level errors.
func (r SyncResult) RowsFailed() int {
	n := 0
	for _, e := range r.Errors {
		if e.Row != "" {
			n++
		}
	}
	return n
}

// RunSummary aggregates the results of one orchestrator run.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	Mode        RunMode       `json:"mode"`
	StartedAt   time.Time     `json:"started_at"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	Results     []SyncResult  `json:"results"`
	RowsRead    int           `json:"rows_read"`
	RowsWritten int           `json:"rows_written"`
	RowsFailed  int           `json:"rows_failed"`
	Failed      int           `json:"tables_failed"`
	Incomplete  int           `json:"tables_incomplete"`
	Skipped     int           `json:"tables_skipped"`
}

// Add appends a table result and updates the totals.
func (s *RunSummary) Add(r SyncResult) {
	s.Results = append(s.Results, r)
	s.RowsRead += r.RowsRead
	s.RowsWritten += r.RowsWritten
	s.RowsFailed += r.RowsFailed()
	switch r.Status {
	case TableFailed:
		s.Failed++
	case TableIncomplete:
		s.Incomplete++
	case TableSkipped:
		s.Skipped++
	}
}

// Partial reports whether any table or row did not load cleanly.
func (s *RunSummary) Partial() bool {
	return s.Failed > 0 || s.Incomplete > 0 || s.RowsFailed > 0
}
