package chronos

import (
	"errors"
	"fmt"
)

// Common sentinel errors for the chronos package.
var (
	// ErrClosed is returned when operations are attempted on a closed store.
	ErrClosed = errors.New("store is closed")

	// ErrSampleTooOld is returned when a sample's timestamp falls outside
	// the retention window of its series.
	ErrSampleTooOld = errors.New("sample is older than the retention window")

	// ErrDuplicateSample is returned when a sample is rejected by the
	// duplicate policy or lands inside the deduplication interval.
	ErrDuplicateSample = errors.New("duplicate sample")

	// ErrSampleOutOfOrder is returned when a compressed stream receives a
	// timestamp lower than the last one it holds.
	ErrSampleOutOfOrder = errors.New("samples aren't sorted by timestamp ascending")

	// ErrDuplicateMetric is returned when a metric name and label set is
	// already registered under a different series.
	ErrDuplicateMetric = errors.New("duplicate metric")

	// ErrSeriesNotFound is returned when no series exists under a key.
	ErrSeriesNotFound = errors.New("series not found")

	// ErrCorruptedSnapshot is returned when a snapshot cannot be decoded.
	ErrCorruptedSnapshot = errors.New("corrupted snapshot")

	// errChunkFull signals that a chunk reached capacity. It never
	// escapes TimeSeries, which reacts by rolling over to a new chunk.
	errChunkFull = errors.New("chunk is at capacity")
)

// SnapshotErrorType categorizes snapshot persistence errors.
type SnapshotErrorType int

const (
	// SnapshotErrorTypeUnknown is an unclassified error.
	SnapshotErrorTypeUnknown SnapshotErrorType = iota
	// SnapshotErrorTypeRead indicates a backend read failure.
	SnapshotErrorTypeRead
	// SnapshotErrorTypeWrite indicates a backend write failure.
	SnapshotErrorTypeWrite
	// SnapshotErrorTypeCorruption indicates an undecodable snapshot.
	SnapshotErrorTypeCorruption
)

// SnapshotError provides detailed information about snapshot failures.
type SnapshotError struct {
	Type    SnapshotErrorType
	Message string
	Key     string
	Cause   error
}

func (e *SnapshotError) Error() string {
	if e.Key != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s [%s]: %v", e.Message, e.Key, e.Cause)
		}
		return fmt.Sprintf("%s [%s]", e.Message, e.Key)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SnapshotError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for SnapshotError.
func (e *SnapshotError) Is(target error) bool {
	if e.Type == SnapshotErrorTypeCorruption {
		return target == ErrCorruptedSnapshot
	}
	return false
}

// newSnapshotError creates a new SnapshotError.
func newSnapshotError(errType SnapshotErrorType, message, key string, cause error) *SnapshotError {
	return &SnapshotError{
		Type:    errType,
		Message: message,
		Key:     key,
		Cause:   cause,
	}
}
