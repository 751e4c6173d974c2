package monque

import "github.com/relaysched/monque/internal/model"

// Status is the lifecycle state of a Job.
type Status = model.Status

const (
	StatusPending    = model.StatusPending
	StatusProcessing = model.StatusProcessing
	StatusCompleted  = model.StatusCompleted
	StatusFailed     = model.StatusFailed
	StatusCancelled  = model.StatusCancelled
)

// Job is the sole persistent entity in the store. See internal/store for the
// repository that owns all reads and writes of this type.
type Job = model.Job
