package main

import "fmt"

const (
	exitCodeFailure  = 1
	exitCodeConfig   = 2
	exitCodeCanceled = 130
)

type exitError struct {
	code   int
	err    error
	silent bool
}

func (e *exitError) Error() string {
	if e == nil {
		return ""
	}
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit %d", e.code)
}

func (e *exitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// configError exits with code 2 before any vendor is contacted.
func configError(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: exitCodeConfig, err: fmt.Errorf("configuration: %w", err)}
}
