package audio

import (
	"errors"
	"time"
)

// Fixed capture format: mono, signed 16-bit little-endian PCM at 16 kHz in 100 ms frames.
const (
	SampleRate    = 16000
	Channels      = 1
	BitDepth      = 16
	FrameDuration = 100 * time.Millisecond
	FrameSamples  = SampleRate / 10
)

var (
	// ErrDeviceUnavailable is returned when the capture device cannot be opened.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrCaptureFault marks a recoverable read error; capture keeps going.
	ErrCaptureFault = errors.New("audio capture fault")
	// ErrDeviceLost marks a terminal device failure; no more frames will arrive.
	ErrDeviceLost = errors.New("audio device lost")
)

// Frame is one chunk of mono samples as delivered by a device. It is never
// modified after it has been handed to a FrameSink.
type Frame []int16

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	return time.Duration(len(f)) * time.Second / SampleRate
}

// StreamParams describes the stream a Capture should open.
type StreamParams struct {
	DeviceID     string
	SampleRate   int
	Channels     int
	FrameSamples int
}

// DefaultParams returns the fixed capture format for the given device.
func DefaultParams(deviceID string) StreamParams {
	return StreamParams{
		DeviceID:     deviceID,
		SampleRate:   SampleRate,
		Channels:     Channels,
		FrameSamples: FrameSamples,
	}
}

// FrameSink receives frames from the device's producer goroutine.
// OnFrame takes ownership of the slice. Both methods run on the capture path
// and must return quickly.
type FrameSink interface {
	OnFrame(f Frame)
	// OnFault reports a device error wrapping ErrCaptureFault or ErrDeviceLost.
	OnFault(err error)
}

// Capture defines the interface for audio capture
type Capture interface {
	Open(params StreamParams, sink FrameSink) (Stream, error)
	ListDevices() ([]AudioDevice, error)
	Close() error
}

// Stream is an open capture stream. Close stops delivery and is safe to call
// more than once.
type Stream interface {
	Close() error
}

// AudioDevice represents an audio input device
type AudioDevice struct {
	ID      string
	Name    string
	Default bool
}
