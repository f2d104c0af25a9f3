package domain

import "time"

// ReportOutput selects what a report run returns.
type ReportOutput string

const (
	ReportOutputRecords ReportOutput = "records" // matching customers
	ReportOutputNames   ReportOutput = "names"   // "First Last" strings
)

// TriggerType decides when a report runs on its own.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerSchedule  TriggerType = "schedule"   // TriggerConfig is a cron expression
	TriggerFileWatch TriggerType = "file_watch" // TriggerConfig is a file path
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Report is a saved customer query: where the records come from, how they
// are filtered and ordered, and what the run returns.
type Report struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	SourceType    string         `json:"sourceType"`
	SourceConfig  map[string]any `json:"sourceConfig"`
	Criteria      Criteria       `json:"criteria"`
	OrderBy       string         `json:"orderBy,omitempty"`   // firstName | lastName | totalOrdersPlaced
	Direction     string         `json:"direction,omitempty"` // asc | desc
	Output        ReportOutput   `json:"output"`
	TriggerType   TriggerType    `json:"triggerType"`
	TriggerConfig string         `json:"triggerConfig,omitempty"`
	Enabled       bool           `json:"enabled"`
	LastRunAt     *time.Time     `json:"lastRunAt,omitempty"`
	LastStatus    string         `json:"lastStatus,omitempty"`
	LastError     string         `json:"lastError,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// ReportResult is the outcome of one report run.
type ReportResult struct {
	ReportID    string     `json:"reportId"`
	Status      string     `json:"status"`
	RowsRead    int        `json:"rowsRead"`
	RowsMatched int        `json:"rowsMatched"`
	Records     []Customer `json:"records,omitempty"`
	Names       []string   `json:"names,omitempty"`
	Duration    string     `json:"duration"`
	Error       string     `json:"error,omitempty"`
}

// ReportRunLog is the persisted history entry of a run.
type ReportRunLog struct {
	ID          string    `json:"id"`
	ReportID    string    `json:"reportId"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Status      string    `json:"status"`
	RowsRead    int       `json:"rowsRead"`
	RowsMatched int       `json:"rowsMatched"`
	Error       string    `json:"error,omitempty"`
}
