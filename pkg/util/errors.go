// Package util provides logging helpers and the error types shared by the
// parser, reconciler, and static route editor.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors
var (
	ErrSourceUnavailable   = errors.New("route source unavailable")
	ErrStoreAnomaly        = errors.New("store verification anomaly")
	ErrConfigBlockNotFound = errors.New("static protocol block not found in configuration")
	ErrRouteNotFound       = errors.New("route not found in store")
	ErrRouteNotInConfig    = errors.New("route not found in configuration")
	ErrReloadFailed        = errors.New("daemon reload failed")
	ErrValidationFailed    = errors.New("validation failed")
)

// SourceError is returned when the route source could not produce a dump.
type SourceError struct {
	Command string
	Output  string
	Err     error
}

func (e *SourceError) Error() string {
	msg := fmt.Sprintf("running %s: %v", e.Command, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += " (" + out + ")"
	}
	return msg
}

func (e *SourceError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// AnomalyError describes a store entry that did not read back as written.
type AnomalyError struct {
	Key    string
	Reason string
}

func (e *AnomalyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Key, e.Reason)
}

func (e *AnomalyError) Unwrap() error {
	return ErrStoreAnomaly
}

// NewAnomalyError creates an anomaly for key.
func NewAnomalyError(key, format string, args ...interface{}) *AnomalyError {
	return &AnomalyError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

// ReloadError is returned when the daemon rejected a reconfigure request.
// The configuration file has already been replaced when this is returned.
type ReloadError struct {
	Output         string
	ConfigReplaced bool
	Err            error
}

func (e *ReloadError) Error() string {
	msg := "daemon reload failed"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += " (" + out + ")"
	}
	if e.ConfigReplaced {
		msg += "; configuration file was already replaced and has not been rolled back"
	}
	return msg
}

func (e *ReloadError) Is(target error) bool {
	return target == ErrReloadFailed
}

func (e *ReloadError) Unwrap() error {
	return e.Err
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}
