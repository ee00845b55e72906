package testutil

import "errors"

// ErrSimulated is returned by flows that are meant to fail in tests.
var ErrSimulated = errors.New("simulated flow failure")
