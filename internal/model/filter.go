package model

import "time"

// Filter describes a declarative query over the jobs collection. The zero
// value matches every job.
type Filter struct {
	Name string

	// Status restricts results to jobs with any of these statuses. A single
	// entry compiles to an equality check; two or more compile to a
	// set-membership predicate. Empty means unrestricted.
	Status []Status

	// OlderThan and NewerThan apply to CreatedAt with strict inequalities
	// and may both be set.
	OlderThan *time.Time
	NewerThan *time.Time
}

// Direction is the pagination direction carried by a Cursor.
type Direction byte

const (
	DirectionForward  Direction = 'F'
	DirectionBackward Direction = 'B'
)

// Page requests one page of results.
type Page struct {
	Cursor string // opaque, from PageResult.NextCursor or PrevCursor
	Limit  int
}

// PageResult is one page of a keyset-paginated query.
type PageResult struct {
	Jobs []*Job
	// NextCursor points after the last job and PrevCursor before the first
	// job. Both are set whenever Jobs is non-empty and both are empty when
	// it is; neither indicates whether more jobs exist in that direction.
	NextCursor string
	PrevCursor string
}
