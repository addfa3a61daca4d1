package shared

import (
	"errors"
	"fmt"
)

// ErrDeviceUnavailable is the steady state while the target port is not
// listed. It is logged, never returned to the caller of the monitor.
var ErrDeviceUnavailable = errors.New("midi device unavailable")

// DeviceReadError is reported when the open port fails while listening.
// The monitor treats it as a disconnect.
type DeviceReadError struct {
	Port string
	Err  error
}

func (e *DeviceReadError) Error() string {
	return fmt.Sprintf("read from %q: %v", e.Port, e.Err)
}

func (e *DeviceReadError) Unwrap() error { return e.Err }

// WriteFailure is reported when a closed segment could not be saved.
// The segment data is lost, recording goes on.
type WriteFailure struct {
	Path string
	Err  error
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteFailure) Unwrap() error { return e.Err }
