package models

import "fmt"

// ConfigurationError reports the first violated training configuration constraint
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "invalid training configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid training configuration: %s: %s", e.Field, e.Reason)
}

// InsufficientDataError is returned when a sampling strategy cannot satisfy its quota
type InsufficientDataError struct {
	Strategy  WeightsInitializer
	Requested int
	Available int
	// LabelID is set when a single class could not satisfy its quota, -1 otherwise
	LabelID int
}

func (e *InsufficientDataError) Error() string {
	if e.LabelID >= 0 {
		return fmt.Sprintf("%s: class %d has %d records, quota is %d",
			e.Strategy, e.LabelID, e.Available, e.Requested)
	}
	return fmt.Sprintf("%s: requested %d records, only %d available",
		e.Strategy, e.Requested, e.Available)
}

// UnknownLabelError reports a label id or label text outside the known mapping
type UnknownLabelError struct {
	ID   int
	Text string
	ByID bool
}

func (e *UnknownLabelError) Error() string {
	if e.ByID {
		return fmt.Sprintf("unknown label id: %d", e.ID)
	}
	return fmt.Sprintf("unknown label text: %q", e.Text)
}

// ObserverFailure wraps an error raised by a training observer
type ObserverFailure struct {
	Observer string
	Epoch    int
	Err      error
}

func (e *ObserverFailure) Error() string {
	return fmt.Sprintf("observer %s failed at epoch %d: %v", e.Observer, e.Epoch, e.Err)
}

func (e *ObserverFailure) Unwrap() error {
	return e.Err
}
