package monque

import "github.com/relaysched/monque/internal/model"

// Filter describes a declarative query over the jobs collection. The zero
// value matches every job.
type Filter = model.Filter

// Direction is the pagination direction carried by a Cursor.
type Direction = model.Direction

const (
	DirectionForward  = model.DirectionForward
	DirectionBackward = model.DirectionBackward
)

// Page requests one page of results.
type Page = model.Page

// PageResult is one page of a keyset-paginated query.
type PageResult = model.PageResult
