// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package registry

import (
	"errors"
	"fmt"

	"github.com/pdiddy/affiliation-engine/pkg/types"
)

// Validation errors returned before any network call is made.
var (
	ErrNoDomains         = errors.New("at least one e-mail domain is required")
	ErrInvalidMaxResults = errors.New("max results must be greater than zero")
	ErrInvalidDomain     = errors.New("invalid e-mail domain")
)

// StageError is a failure attributed to one pipeline stage. Identifier is
// empty for search-level failures.
type StageError struct {
	Identifier string
	Stage      string
	Err        error
}

func (e *StageError) Error() string {
	if e.Identifier == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Identifier, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage tag of err, or "" when err is not a StageError.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

func parseError(identifier string, err error) *StageError {
	return &StageError{Identifier: identifier, Stage: types.StageRecordParsing, Err: err}
}

// cause returns the message of the innermost StageError cause, so telemetry
// does not repeat the stage and identifier it already carries.
func cause(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Err.Error()
	}
	return err.Error()
}
