package models

import (
	"time"
)

type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRendering JobStatus = "rendering"
	StatusUploading JobStatus = "uploading"
	StatusDone      JobStatus = "done"
	StatusError     JobStatus = "error"
)

// Terminal reports whether no further status transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusError
}

func (s JobStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusRendering, StatusUploading, StatusDone, StatusError:
		return true
	default:
		return false
	}
}

type Job struct {
	ID         string
	Status     JobStatus
	InputProps map[string]interface{}
	VideoURL   string
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Stats struct {
	TotalJobs      int
	CountsByStatus map[JobStatus]int
	OldestAgeHours float64
	NewestAgeHours float64
}
