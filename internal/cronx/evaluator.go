// Package cronx validates five-field cron expressions and computes the next
// fire time strictly after a reference instant, in UTC. It wraps
// github.com/robfig/cron/v3 (also used by the teacher's dispatcher and by
// beeper-ai-bridge) behind a narrower interface that returns a single
// closed error type instead of robfig's raw parse errors.
package cronx

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// parser matches the classic five-field (minute hour dom month dow) form,
// the same one the teacher validates with cron.ParseStandard.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseError carries the original expression alongside the underlying
// parse failure.
type ParseError struct {
	Expression string
	Err        error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cronx: invalid cron expression %q: %v", e.Expression, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Validate returns a non-nil *ParseError if expr is not a valid five-field
// cron expression.
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return &ParseError{Expression: expr, Err: err}
	}
	return nil
}

// Next returns the smallest instant strictly greater than ref that
// satisfies expr, in UTC. Callers must Validate (or otherwise already know
// expr parses) before calling Next; Next surfaces the same *ParseError on a
// malformed expression, and also on one that parses but never fires (for
// example February 30th), instead of returning the zero time.
func Next(expr string, ref time.Time) (time.Time, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, &ParseError{Expression: expr, Err: err}
	}
	next := sched.Next(ref.UTC())
	if next.IsZero() {
		return time.Time{}, &ParseError{Expression: expr, Err: errNeverFires}
	}
	return next.UTC(), nil
}

var errNeverFires = errors.New("expression has no upcoming fire time")
