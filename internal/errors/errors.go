// Package errors holds the typed failures findall components report.
// Every type unwraps to its cause so callers match with errors.Is/As.
package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
)

var (
	// ErrCancelled is the outcome of a cancelled index run or query.
	// Callers treat it as a stop, never as a failure.
	ErrCancelled = errors.New("operation cancelled")

	// ErrIndexInProgress rejects a full index requested while one runs.
	ErrIndexInProgress = errors.New("indexing already in progress")
)

// IsCancelled reports whether err stems from cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsTooManyOpenFiles reports whether err is EMFILE or ENFILE.
func IsTooManyOpenFiles(err error) bool {
	return errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE)
}

// IndexingError is a failure of a whole indexing phase.
type IndexingError struct {
	Phase string
	Err   error
}

func NewIndexingError(phase string, err error) *IndexingError {
	return &IndexingError{Phase: phase, Err: err}
}

func (e *IndexingError) Error() string {
	return fmt.Sprintf("indexing: %s: %v", e.Phase, e.Err)
}

func (e *IndexingError) Unwrap() error { return e.Err }

// ExtractionError is a per-file symbol extraction failure. The file
// contributes only its file item.
type ExtractionError struct {
	Path     string
	Language string
	Err      error
}

func NewExtractionError(path, language string, err error) *ExtractionError {
	return &ExtractionError{Path: path, Language: language, Err: err}
}

func (e *ExtractionError) Error() string {
	if e.Language != "" {
		return fmt.Sprintf("extract %s (%s): %v", e.Path, e.Language, e.Err)
	}
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// FileError wraps a stat or read failure while listing the workspace.
type FileError struct {
	Op   string
	Path string
	Err  error
}

func NewFileError(op, path string, err error) *FileError {
	return &FileError{Op: op, Path: path, Err: err}
}

// Permission reports whether the file was unreadable rather than gone.
func (e *FileError) Permission() bool {
	return errors.Is(e.Err, fs.ErrPermission)
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// ConfigError names the config field that failed validation.
type ConfigError struct {
	Field string
	Value string
	Err   error
}

func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Err: err}
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("config %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config %s=%q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// StoreError is a persistence failure. Callers log it and keep running
// on in-memory state.
type StoreError struct {
	Backend string
	Op      string
	Err     error
}

func NewStoreError(backend, op string, err error) *StoreError {
	return &StoreError{Backend: backend, Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s store: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// MultiError collects the failures of a teardown or a batch.
type MultiError struct {
	Errors []error
}

// NewMultiError drops nil entries.
func NewMultiError(errs []error) *MultiError {
	m := &MultiError{}
	for _, err := range errs {
		if err != nil {
			m.Errors = append(m.Errors, err)
		}
	}
	return m
}

// ErrorOrNil returns nil when nothing was collected.
func (e *MultiError) ErrorOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

func (e *MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

func (e *MultiError) Unwrap() []error { return e.Errors }
