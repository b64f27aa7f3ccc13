// Package malgo captures microphone audio through miniaudio's real-time callback.
package malgo

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/petems/consult-recorder/internal/audio"
)

type malgoCapture struct {
	ctx *malgo.AllocatedContext
}

// New initializes a miniaudio context for the platform's native backend.
func New() (audio.Capture, error) {
	ctx, err := malgo.InitContext([]malgo.Backend{backend()}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio: %w", err)
	}
	return &malgoCapture{ctx: ctx}, nil
}

func backend() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

func (m *malgoCapture) Open(params audio.StreamParams, sink audio.FrameSink) (audio.Stream, error) {
	info, err := m.findDevice(params.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", audio.ErrDeviceUnavailable, err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(params.Channels)
	cfg.Capture.DeviceID = info.ID.Pointer()
	cfg.SampleRate = uint32(params.SampleRate)
	cfg.PeriodSizeInFrames = uint32(params.FrameSamples)
	cfg.Alsa.NoMMap = 1

	s := &malgoStream{sink: sink}
	s.framer = audio.NewFramer(params.FrameSamples, sink.OnFrame)

	device, err := malgo.InitDevice(m.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to init device: %w", audio.ErrDeviceUnavailable, err)
	}
	s.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("%w: failed to start device: %w", audio.ErrDeviceUnavailable, err)
	}
	return s, nil
}

func (m *malgoCapture) findDevice(deviceID string) (*malgo.DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no capture devices")
	}

	if deviceID == "" || deviceID == "default" {
		for i := range devices {
			if devices[i].IsDefault == 1 {
				return &devices[i], nil
			}
		}
		return &devices[0], nil
	}

	for i := range devices {
		if devices[i].Name() == deviceID {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", deviceID)
}

func (m *malgoCapture) ListDevices() ([]audio.AudioDevice, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]audio.AudioDevice, 0, len(devices))
	for i := range devices {
		result = append(result, audio.AudioDevice{
			ID:      devices[i].Name(),
			Name:    devices[i].Name(),
			Default: devices[i].IsDefault == 1,
		})
	}
	return result, nil
}

func (m *malgoCapture) Close() error {
	if m.ctx == nil {
		return nil
	}
	err := m.ctx.Uninit()
	m.ctx.Free()
	m.ctx = nil
	return err
}

type malgoStream struct {
	device *malgo.Device
	sink   audio.FrameSink
	// framer is only touched from the device callback.
	framer *audio.Framer

	closing   atomic.Bool
	closeOnce sync.Once
}

// onData runs on miniaudio's real-time thread.
func (s *malgoStream) onData(_, input []byte, _ uint32) {
	if s.closing.Load() {
		return
	}
	s.framer.WriteBytes(input)
}

func (s *malgoStream) onStop() {
	if s.closing.Load() {
		return
	}
	s.sink.OnFault(fmt.Errorf("%w: device stopped unexpectedly", audio.ErrDeviceLost))
}

func (s *malgoStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		err = s.device.Stop()
		s.device.Uninit()
	})
	return err
}
