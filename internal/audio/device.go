package audio

import (
	"errors"
	"fmt"
)

// DefaultDevice selects the host's default input device.
const DefaultDevice = -1

var (
	ErrAlreadyCapturing = errors.New("audio capture already started")
	ErrNoInputDevice    = errors.New("no input device available")
)

// Device is one input-capable entry from the host device enumeration.
type Device struct {
	ID                int     `json:"id"`
	Name              string  `json:"name"`
	MaxInputChannels  int     `json:"max_input_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
}

func (d Device) String() string {
	return fmt.Sprintf("%s (Index: %d)", d.Name, d.ID)
}

// DeviceLister enumerates input devices. The core never calls it; control
// surfaces use it to let the operator pick a device.
type DeviceLister interface {
	InputDevices() ([]Device, error)
}

// DeviceError reports a device that could not be opened or enumerated.
type DeviceError struct {
	Device int
	Op     string
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Device == DefaultDevice {
		return fmt.Sprintf("%s default input device: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s input device %d: %v", e.Op, e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }
