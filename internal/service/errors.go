package service

import (
	"errors"
	"strings"
)

// ErrWriteConflict is returned when a patient kept changing underneath a
// write until the retry budget ran out.
var ErrWriteConflict = errors.New("patient was modified concurrently, please retry")

type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

// validator collects field problems in order and reports them together.
type validator struct {
	errs []string
}

func (v *validator) add(msg string) {
	v.errs = append(v.errs, msg)
}

func (v *validator) check(ok bool, msg string) {
	if !ok {
		v.add(msg)
	}
}

func (v *validator) err() error {
	if len(v.errs) > 0 {
		return &ValidationError{Fields: v.errs}
	}
	return nil
}
