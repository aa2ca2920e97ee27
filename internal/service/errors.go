package service

import (
	"fmt"
)

type ErrJobNotFound struct {
	error
}

func NewErrJobNotFound(id string) *ErrJobNotFound {
	return &ErrJobNotFound{fmt.Errorf("job %s not found", id)}
}

type ErrJobNotTerminal struct {
	error
}

func NewErrJobNotTerminal(id string, status string) *ErrJobNotTerminal {
	return &ErrJobNotTerminal{fmt.Errorf("job %s is %s and cannot be deleted before it completes or fails", id, status)}
}

type ErrJobAlreadyExists struct {
	error
}

func NewErrJobAlreadyExists(id string) *ErrJobAlreadyExists {
	return &ErrJobAlreadyExists{fmt.Errorf("job %s already exists", id)}
}

type ErrInvalidRequest struct {
	error
}

func NewErrInvalidRequest(message string) *ErrInvalidRequest {
	return &ErrInvalidRequest{fmt.Errorf("bad request: %s", message)}
}

type ErrUnavailable struct {
	error
}

func NewErrUnavailable(reason error) *ErrUnavailable {
	return &ErrUnavailable{fmt.Errorf("service unavailable: %w", reason)}
}
