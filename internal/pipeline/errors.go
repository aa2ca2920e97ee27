package pipeline

import (
	"errors"
	"fmt"

	"github.com/ugclab/ugc-pipeline/internal/catalog"
)

var ErrClosed = errors.New("orchestrator is closed")

// StageError is the failure of a stage after its last attempt.
type StageError struct {
	Step     catalog.StepID
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed after %d attempt(s): %v", e.Step, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks err as not worth retrying. The remaining attempts of the
// stage are skipped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
