// Package exception provides the error taxonomy of the pipeline engine.
// Every error raised by the engine is a *BatchError carrying the module it came from,
// a concise message, the wrapped cause, and a Kind that tells the orchestrator whether
// the failure is local to one item or fatal to the whole stage.
package exception

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"reflect"
	"runtime"
	"sort"
	"sync"
)

// Kind classifies a BatchError.
type Kind int

const (
	// KindGeneric is an unclassified engine error.
	KindGeneric Kind = iota
	// KindItem means one item's unit of work failed. The stage continues.
	KindItem
	// KindStageFailure means a condition outside per-item scope halted the stage.
	KindStageFailure
	// KindConfiguration means the pipeline cannot start with the given configuration.
	KindConfiguration
	// KindExhaustedRetries is the terminal outcome of a retrying external call.
	KindExhaustedRetries
)

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindItem:
		return "item_error"
	case KindStageFailure:
		return "stage_failure"
	case KindConfiguration:
		return "configuration_error"
	case KindExhaustedRetries:
		return "exhausted_retries"
	default:
		return "batch_error"
	}
}

// BatchError is the error type shared by every notepipe component.
type BatchError struct {
	// Module indicates where the error occurred (e.g., "tracker", "retry", "config").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped cause.
	OriginalErr error
	// Kind classifies the error.
	Kind Kind
	// Attempts is the number of calls made before giving up (KindExhaustedRetries only).
	Attempts int
	// StackTrace is the stack at construction time.
	StackTrace string

	retryable bool
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// NewBatchError creates a generic BatchError.
//
// Parameters:
//
//	module: The module where the error occurred.
//	message: The error message.
//	originalErr: The original error to wrap (may be nil).
//	isRetryable: Whether a retrying caller may attempt the operation again.
func NewBatchError(module, message string, originalErr error, isRetryable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		Kind:        KindGeneric,
		StackTrace:  captureStack(),
		retryable:   isRetryable,
	}
}

// NewBatchErrorf creates a generic, non-retryable BatchError from a format string.
// If the last argument is an error it is wrapped rather than formatted.
//
// Example:
//
//	NewBatchErrorf("store", "failed to read %s", path, err)
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	args := a
	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}
	return &BatchError{
		Module:      module,
		Message:     fmt.Sprintf(format, args...),
		OriginalErr: originalErr,
		Kind:        KindGeneric,
		StackTrace:  captureStack(),
	}
}

// NewItemError wraps the failure of a single item's unit of work.
func NewItemError(module, message string, originalErr error) *BatchError {
	e := NewBatchError(module, message, originalErr, false)
	e.Kind = KindItem
	return e
}

// NewStageFailure wraps a condition that halts the current stage.
func NewStageFailure(module, message string, originalErr error) *BatchError {
	e := NewBatchError(module, message, originalErr, false)
	e.Kind = KindStageFailure
	return e
}

// NewConfigurationError wraps an error that prevents the pipeline from starting.
func NewConfigurationError(module, message string, originalErr error) *BatchError {
	e := NewBatchError(module, message, originalErr, false)
	e.Kind = KindConfiguration
	return e
}

// NewExhaustedRetries wraps the last error of a call that failed on every attempt.
func NewExhaustedRetries(module string, attempts int, lastErr error) *BatchError {
	e := NewBatchError(module, fmt.Sprintf("giving up after %d attempt(s)", attempts), lastErr, false)
	e.Kind = KindExhaustedRetries
	e.Attempts = attempts
	return e
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Is and errors.As.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable reports whether the error was constructed as retryable.
func (e *BatchError) IsRetryable() bool {
	return e.retryable
}

func hasKind(err error, kind Kind) bool {
	for err != nil {
		var be *BatchError
		if !errors.As(err, &be) {
			return false
		}
		if be.Kind == kind {
			return true
		}
		err = be.OriginalErr
	}
	return false
}

// IsItemError reports whether err (or any error it wraps) is an item error.
func IsItemError(err error) bool { return hasKind(err, KindItem) }

// IsStageFailure reports whether err (or any error it wraps) is a stage failure.
func IsStageFailure(err error) bool { return hasKind(err, KindStageFailure) }

// IsConfigurationError reports whether err (or any error it wraps) is a configuration error.
func IsConfigurationError(err error) bool { return hasKind(err, KindConfiguration) }

// IsExhaustedRetries reports whether err (or any error it wraps) is an exhausted-retries error.
func IsExhaustedRetries(err error) bool { return hasKind(err, KindExhaustedRetries) }

// IsRetryable reports whether any BatchError in the chain was marked retryable.
func IsRetryable(err error) bool {
	for err != nil {
		var be *BatchError
		if !errors.As(err, &be) {
			return false
		}
		if be.retryable {
			return true
		}
		err = be.OriginalErr
	}
	return false
}

// IsCancellation reports whether err was caused by context cancellation or deadline.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ExtractErrorMessage returns the cleaner Message of a BatchError, or err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		if be.OriginalErr != nil {
			return be.Message + ": " + be.OriginalErr.Error()
		}
		return be.Message
	}
	return err.Error()
}

// --- error type registry ---

// errorRegistry maps error names usable in configuration to sentinel instances.
var (
	errorRegistry = make(map[string]error)
	registryMutex sync.RWMutex
)

// RegisterErrorType registers a sentinel under a configuration-visible name.
// It panics on an empty name or a nil prototype.
func RegisterErrorType(name string, prototype error) {
	if name == "" {
		panic("error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("cannot register nil prototype for name: %s", name))
	}
	registryMutex.Lock()
	defer registryMutex.Unlock()
	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered checks if name is registered.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// IsErrorOfType checks err against a registered name.
// It tries errors.Is against the registered sentinel first, then walks the chain comparing
// Go type names (e.g. "*net.OpError").
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMutex.RLock()
	target, ok := errorRegistry[errorTypeName]
	registryMutex.RUnlock()
	if ok && errors.Is(err, target) {
		return true
	}

	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		t := reflect.TypeOf(cur)
		if t == nil {
			continue
		}
		if t.String() == errorTypeName || (t.Kind() == reflect.Ptr && t.Elem().String() == errorTypeName) {
			return true
		}
	}
	return false
}

// ErrRateLimited is returned by external clients when the provider rejects a call for quota reasons.
var ErrRateLimited = errors.New("rate limited by provider")

// ErrServerUnavailable is returned by external clients for transient provider-side failures.
var ErrServerUnavailable = errors.New("provider unavailable")

// RegisteredErrorTypes returns the registered names in sorted order.
func RegisteredErrorTypes() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	names := make([]string, 0, len(errorRegistry))
	for name := range errorRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterErrorType("ErrRateLimited", ErrRateLimited)
	RegisterErrorType("ErrServerUnavailable", ErrServerUnavailable)
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("io.ErrUnexpectedEOF", io.ErrUnexpectedEOF)
	RegisterErrorType("sql.ErrConnDone", sql.ErrConnDone)
	RegisterErrorType("*net.OpError", errors.New("*net.OpError"))
}
