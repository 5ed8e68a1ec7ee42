package devices

import (
	"errors"
	"strings"
)

type CameraNotFoundError struct {
	Identifier string
}

type ValidationError struct {
	Problems []string
}

type StoreError struct {
	Op  string
	Err error
}

func (e *CameraNotFoundError) Error() string {
	return "camera not found: " + e.Identifier
}

func (e *ValidationError) Error() string {
	return "invalid camera settings: " + strings.Join(e.Problems, "; ")
}

func (e *StoreError) Error() string {
	return "camera store " + e.Op + " failed: " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func IsCameraNotFoundError(err error) bool {
	var target *CameraNotFoundError
	return errors.As(err, &target)
}

func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsStoreError(err error) bool {
	var target *StoreError
	return errors.As(err, &target)
}

func NewCameraNotFoundError(id string) error {
	return &CameraNotFoundError{Identifier: id}
}

func NewValidationError(problems ...string) error {
	return &ValidationError{Problems: problems}
}

func NewStoreError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
