package persistence

import "errors"

// ErrNotImplemented is returned by optional Store operations a given
// implementation chooses not to support (e.g. DestroySessionRecord,
// which the spec marks optional for the core).
var ErrNotImplemented = errors.New("persistence: operation not implemented")
