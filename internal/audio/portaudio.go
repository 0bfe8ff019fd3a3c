package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Stream delivers fixed-size chunks of little-endian int16 PCM.
type Stream interface {
	// Read blocks until one chunk is available.
	Read() ([]byte, error)
	// Close stops the stream and releases the device.
	Close() error
}

// Opener opens capture streams on a device.
type Opener interface {
	Open(device int, format Format, framesPerChunk int) (Stream, error)
}

// ErrInputOverflow marks a chunk the device delivered after dropping input.
// The chunk itself is still valid.
var ErrInputOverflow = errors.New("input overflowed")

// PortAudio opens capture streams and enumerates devices through PortAudio.
// InitPortAudio must have been called first.
type PortAudio struct{}

// InitPortAudio initializes the PortAudio library and returns its teardown.
func InitPortAudio() (func() error, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	return portaudio.Terminate, nil
}

func (PortAudio) InputDevices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, &DeviceError{Device: DefaultDevice, Op: "enumerate", Err: err}
	}

	devices := make([]Device, 0, len(infos))
	for i, info := range infos {
		if info.MaxInputChannels <= 0 {
			continue
		}
		devices = append(devices, Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
		})
	}
	return devices, nil
}

func (PortAudio) Open(device int, format Format, framesPerChunk int) (Stream, error) {
	if format.BitDepth != 16 {
		return nil, &DeviceError{Device: device, Op: "open", Err: fmt.Errorf("unsupported bit depth %d", format.BitDepth)}
	}

	info, err := resolveDevice(device)
	if err != nil {
		return nil, &DeviceError{Device: device, Op: "open", Err: err}
	}

	buf := make([]int16, framesPerChunk*format.Channels)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: format.Channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      float64(format.SampleRate),
		FramesPerBuffer: framesPerChunk,
	}

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, &DeviceError{Device: device, Op: "open", Err: err}
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, &DeviceError{Device: device, Op: "start", Err: err}
	}

	s := &paStream{stream: stream, buf: buf}
	s.out.Grow(len(buf) * 2)
	return s, nil
}

func resolveDevice(device int) (*portaudio.DeviceInfo, error) {
	if device == DefaultDevice {
		info, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, err
		}
		if info == nil {
			return nil, ErrNoInputDevice
		}
		return info, nil
	}

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if device < 0 || device >= len(infos) {
		return nil, fmt.Errorf("invalid device index %d", device)
	}
	if infos[device].MaxInputChannels <= 0 {
		return nil, fmt.Errorf("device %q has no input channels", infos[device].Name)
	}
	return infos[device], nil
}

type paStream struct {
	stream *portaudio.Stream
	buf    []int16
	out    bytes.Buffer
}

func (s *paStream) Read() ([]byte, error) {
	readErr := s.stream.Read()
	if readErr != nil && !errors.Is(readErr, portaudio.InputOverflowed) {
		return nil, readErr
	}

	s.out.Reset()
	if err := binary.Write(&s.out, binary.LittleEndian, s.buf); err != nil {
		return nil, err
	}
	chunk := make([]byte, s.out.Len())
	copy(chunk, s.out.Bytes())

	if readErr != nil {
		return chunk, ErrInputOverflow
	}
	return chunk, nil
}

func (s *paStream) Close() error {
	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	if stopErr != nil {
		return stopErr
	}
	return closeErr
}
