// Package portaudio captures microphone audio through PortAudio.
package portaudio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/petems/consult-recorder/internal/audio"
)

type portAudioCapture struct{}

// New creates a new PortAudio-based audio capture
func New() (audio.Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioCapture{}, nil
}

func (p *portAudioCapture) Open(params audio.StreamParams, sink audio.FrameSink) (audio.Stream, error) {
	device, err := findDevice(params.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", audio.ErrDeviceUnavailable, err)
	}

	// Open stream: mono, 16-bit, one frame per read
	buffer := make([]int16, params.FrameSamples*params.Channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: params.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(params.SampleRate),
		FramesPerBuffer: params.FrameSamples,
	}, buffer)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open audio stream: %w", audio.ErrDeviceUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: failed to start audio stream: %w", audio.ErrDeviceUnavailable, err)
	}

	s := &paStream{
		stream: stream,
		buffer: buffer,
		sink:   sink,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func findDevice(deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == deviceID && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", deviceID)
}

func (p *portAudioCapture) ListDevices() ([]audio.AudioDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]audio.AudioDevice, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, audio.AudioDevice{
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}

	return result, nil
}

func (p *portAudioCapture) Close() error {
	return portaudio.Terminate()
}

type paStream struct {
	stream *portaudio.Stream
	buffer []int16
	sink   audio.FrameSink

	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// readLoop is the producer: one blocking Read per frame.
func (s *paStream) readLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		err := s.stream.Read()
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
			}
			if errors.Is(err, portaudio.InputOverflowed) {
				s.sink.OnFault(fmt.Errorf("%w: %w", audio.ErrCaptureFault, err))
			} else {
				s.sink.OnFault(fmt.Errorf("%w: %w", audio.ErrDeviceLost, err))
				return
			}
		}

		// Copy buffer and send
		frame := make(audio.Frame, len(s.buffer))
		copy(frame, s.buffer)
		s.sink.OnFrame(frame)
	}
}

func (s *paStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		// Stop unblocks a pending Read.
		err = s.stream.Stop()
		<-s.done
		if cerr := s.stream.Close(); err == nil {
			err = cerr
		}
	})
	return err
}
