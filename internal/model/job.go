// Package model defines the types shared between the public monque
// package and the internal store/engine packages. It exists so that
// internal/store and internal/engine can depend on the Job/Filter/Page
// shapes without importing the root package, which in turn depends on
// them — the root package re-exports these as type aliases.
package model

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether s is a terminal status (completed, failed, or cancelled).
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Job is the sole persistent entity in the store.
type Job struct {
	ID             string
	Name           string
	Data           json.RawMessage
	Status         Status
	NextRunAt      time.Time
	FailCount      int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	RepeatInterval string // cron expression; empty for non-recurring jobs
	UniqueKey      string
	LockedAt       *time.Time
	ClaimedBy      *string
	FailReason     string
}

// Recurring reports whether the job re-enters pending after each completion.
func (j *Job) Recurring() bool {
	return j.RepeatInterval != ""
}
