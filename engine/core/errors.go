package core

import (
	"errors"
)

// All of these are fatal to the caller. They report a logic bug or a device
// condition the frame loop cannot recover from.
var (
	ErrCapacityExceeded   = errors.New("capacity exceeded")
	ErrGeometryMismatch   = errors.New("geometry mismatch")
	ErrResourceAllocation = errors.New("resource allocation failed")
	ErrDeviceLost         = errors.New("device lost")
	ErrFenceTimeout       = errors.New("timed out waiting on completion token")
	ErrInvalidState       = errors.New("invalid state")
	ErrUnknown            = errors.New("unknown")
)
