package store

import "errors"

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrDuplicateJob    = errors.New("job already exists")
	ErrOutOfOrder      = errors.New("step marker would regress")
	ErrTerminalJob     = errors.New("job is in a terminal state")
	ErrStepNotOptional = errors.New("step cannot be skipped")
	ErrJobNotTerminal  = errors.New("job is not in a terminal state")
	ErrUnknownStep     = errors.New("unknown step")
	ErrEmptyMessage    = errors.New("error message must not be empty")
)
