// Package selector translates a declarative job filter into a Postgres
// WHERE clause and its positional arguments. It generalizes the ad hoc
// where/args building the teacher repeats in
// internal/infrastructure/postgres/job_repo.go (ListJobs) and
// schedule_repo.go (List) into one reusable, dependency-free compiler.
package selector

import (
	"fmt"
	"strings"
	"time"
)

// Status is a minimal restatement of monque.Status to avoid an import cycle
// between the root package and this one; the two are kept in lock-step by
// the store package, which is the only caller of Compile.
type Status string

// Filter mirrors monque.Filter.
type Filter struct {
	Name      string
	Status    []Status
	OlderThan *time.Time
	NewerThan *time.Time
}

// Compiled is a WHERE clause (without the "WHERE " keyword) and its
// positional arguments, numbered from the startAt passed to Compile. An
// empty Filter compiles to an empty clause and no args.
type Compiled struct {
	Where string
	Args  []any
}

// Compile translates f into a store query, starting placeholder numbering
// at startAt (so callers can prepend their own leading args, e.g. a
// tenant id — unused today but keeps the compiler reusable).
func Compile(f Filter, startAt int) Compiled {
	var clauses []string
	var args []any

	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", startAt+len(args)-1)
	}

	if f.Name != "" {
		clauses = append(clauses, "name = "+next(f.Name))
	}

	switch len(f.Status) {
	case 0:
		// unrestricted
	case 1:
		clauses = append(clauses, "status = "+next(string(f.Status[0])))
	default:
		placeholders := make([]string, len(f.Status))
		for i, s := range f.Status {
			placeholders[i] = next(string(s))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	if f.OlderThan != nil {
		clauses = append(clauses, "created_at < "+next(*f.OlderThan))
	}
	if f.NewerThan != nil {
		clauses = append(clauses, "created_at > "+next(*f.NewerThan))
	}

	return Compiled{Where: strings.Join(clauses, " AND "), Args: args}
}
