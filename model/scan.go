package model

import "time"

// ScanHistory records one extraction run over the library.
type ScanHistory struct {
	ID              int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	Directory       string     `json:"directory" gorm:"size:767"`
	StartTime       time.Time  `json:"startTime" gorm:"autoCreateTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	TotalFiles      int        `json:"totalFiles"`
	SuccessfulFiles int        `json:"successfulFiles"`
	Errors          int        `json:"errors"`
}

// TableName pins the table name for the GORM migration.
func (ScanHistory) TableName() string { return "scan_history" }

// Scan job lifecycle states as exposed by the API.
const (
	ScanStatusRunning   = "running"
	ScanStatusCompleted = "completed"
	ScanStatusFailed    = "failed"
)

// ScanJob is the transient status of an in-flight or finished extraction
// job, cached by job ID for progress polling and WebSocket streaming.
type ScanJob struct {
	ID         string    `json:"id"`
	Directory  string    `json:"directory"`
	Status     string    `json:"status"`
	Current    int       `json:"current"`
	Total      int       `json:"total"`
	Message    string    `json:"message"`
	Successful int       `json:"successful"`
	Errors     []string  `json:"errors,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
}
