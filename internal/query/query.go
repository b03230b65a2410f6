package query

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// NoResultsMessage is reported in place of rows when a statement succeeds
// without returning any.
const NoResultsMessage = "Query executed successfully but returned no results"

var ErrNotReadOnly = errors.New("only read-only SELECT statements are allowed")

type Row map[string]any

type Result struct {
	Columns  []string
	Rows     []Row
	Duration time.Duration
}

func (r Result) Empty() bool {
	return len(r.Rows) == 0
}

// Payload is the value surfaced to callers: the rows in order, or a single
// diagnostic mapping when there are none.
func (r Result) Payload() any {
	if r.Empty() {
		return map[string]any{"message": NoResultsMessage}
	}
	return r.Rows
}

// Executor runs gated read-only statements.
type Executor interface {
	ExecuteSelect(ctx context.Context, sqlText string, params ...any) (Result, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, sqlText string) (Result, error)
}

// ValidationError reports a statement the read-only gate refused.
type ValidationError struct {
	SQL string
}

func (e *ValidationError) Error() string {
	return ErrNotReadOnly.Error()
}

func (e *ValidationError) Unwrap() error {
	return ErrNotReadOnly
}

// ExecutionError wraps a driver failure together with the statement that caused it.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("Error executing query: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
