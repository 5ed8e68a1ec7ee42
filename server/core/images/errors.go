package images

import "errors"

type ImageNotFoundError struct {
	Dir  string
	Name string
}

type InvalidCaptureTimeError struct {
	Value string
}

type InvalidNameError struct {
	Name string
}

// DecodeError is returned when an upload is not a decodable JPEG.
type DecodeError struct {
	Err error
}

// EncodeError is returned when a processed frame cannot be written back out as JPEG.
type EncodeError struct {
	Err error
}

func (e *ImageNotFoundError) Error() string {
	if e.Name == "" {
		return "no images found for " + e.Dir
	}
	return "image not found: " + e.Dir + "/" + e.Name
}

func (e *InvalidCaptureTimeError) Error() string {
	return "invalid capture time: " + e.Value
}

func (e *InvalidNameError) Error() string {
	return "invalid image name: " + e.Name
}

func (e *DecodeError) Error() string {
	return "failed to decode JPEG: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *EncodeError) Error() string {
	return "failed to encode JPEG: " + e.Err.Error()
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

func IsImageNotFoundError(err error) bool {
	var target *ImageNotFoundError
	return errors.As(err, &target)
}

func IsInvalidCaptureTimeError(err error) bool {
	var target *InvalidCaptureTimeError
	return errors.As(err, &target)
}

func IsInvalidNameError(err error) bool {
	var target *InvalidNameError
	return errors.As(err, &target)
}

func IsDecodeError(err error) bool {
	var target *DecodeError
	return errors.As(err, &target)
}

func IsEncodeError(err error) bool {
	var target *EncodeError
	return errors.As(err, &target)
}

func NewImageNotFoundError(dir, name string) error {
	return &ImageNotFoundError{Dir: dir, Name: name}
}

func NewInvalidCaptureTimeError(value string) error {
	return &InvalidCaptureTimeError{Value: value}
}

func NewInvalidNameError(name string) error {
	return &InvalidNameError{Name: name}
}
