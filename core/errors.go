package core

import "errors"

// ErrNotFound marks lookups for users or documents that do not exist.
// Stores wrap it so callers can distinguish absence from infrastructure
// failures with errors.Is.
var ErrNotFound = errors.New("not found")
