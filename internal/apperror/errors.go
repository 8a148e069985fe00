// Package apperror defines the error taxonomy shared across chatd's
// components so HTTP handlers can map internal failures to status codes
// without inspecting error strings.
package apperror

import "errors"

// ErrNotFound indicates a chat id that does not exist in the store.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates a client-supplied value failed validation
// (disallowed command, malformed tool arguments, missing required field).
var ErrValidation = errors.New("validation error")

// ErrExternal indicates a failure talking to the remote LLM endpoint,
// transient or protocol-level.
var ErrExternal = errors.New("external error")

// Wrap annotates err with msg while preserving errors.Is/As matching
// against the sentinel. err may be nil, in which case the error's text is
// msg alone.
func Wrap(sentinel error, msg string, err error) error {
	return &wrapped{sentinel: sentinel, msg: msg, err: err}
}

type wrapped struct {
	sentinel error
	msg      string
	err      error
}

func (w *wrapped) Error() string {
	if w.err == nil {
		return w.msg
	}
	return w.msg + ": " + w.err.Error()
}

func (w *wrapped) Unwrap() error { return w.sentinel }

// Is reports whether err (or anything it wraps) matches sentinel. It's a
// thin errors.Is wrapper so callers don't need a separate import just to
// classify an apperror sentinel.
func Is(err, sentinel error) bool {
	return errors.Is(err, sentinel)
}
