package model

import "time"

// Track represents an audio track in the profiled library.
type Track struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	Album     string    `json:"album"`
	FilePath  string    `json:"-"` // Path to the original audio file, not exposed in API directly
	Duration  float32   `json:"duration"` // Duration in seconds, 0 when unknown
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
