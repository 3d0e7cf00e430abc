package trainer

import (
	"errors"
)

var (
	ErrDataUnavailable    = errors.New("data unavailable")
	ErrNotInitialized     = errors.New("model not initialized")
	ErrCorruptArtifact    = errors.New("corrupt artifact")
	ErrNotEnoughData      = errors.New("not enough data")
	ErrAlreadyInitialized = errors.New("model already initialized")
	ErrParamMismatch      = errors.New("parameters differ from the persisted model")
)

// Kind names for logs, notifications and metrics labels.
const (
	KindOK                 = "ok"
	KindDataUnavailable    = "DataUnavailable"
	KindNotInitialized     = "NotInitialized"
	KindCorruptArtifact    = "CorruptArtifact"
	KindNotEnoughData      = "NotEnoughData"
	KindAlreadyInitialized = "AlreadyInitialized"
	KindParamMismatch      = "ParamMismatch"
	KindOther              = "Error"
)

var kinds = []struct {
	err  error
	kind string
	code int
}{
	{ErrNotInitialized, KindNotInitialized, 2},
	{ErrDataUnavailable, KindDataUnavailable, 3},
	{ErrCorruptArtifact, KindCorruptArtifact, 4},
	{ErrNotEnoughData, KindNotEnoughData, 5},
	{ErrParamMismatch, KindParamMismatch, 6},
	{ErrAlreadyInitialized, KindAlreadyInitialized, 6},
}

// Kind returns the failure kind of err, KindOK for nil.
func Kind(err error) string {
	if err == nil {
		return KindOK
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindOther
}

// ExitCode maps err to the trainer binary's process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return 1
}

// FromExitCode maps a trainer process exit code back to its sentinel.
// Code 6 is ambiguous and maps to ErrParamMismatch.
func FromExitCode(code int) error {
	if code == 0 {
		return nil
	}
	for _, k := range kinds {
		if k.code == code {
			return k.err
		}
	}
	return errors.New("trainer failed")
}
