// Package capture implements the recording session lifecycle on top of an
// audio.Capture device.
package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/petems/consult-recorder/internal/audio"
)

type State int

const (
	Idle State = iota
	Recording
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrStopped        = errors.New("session stopped")
)

// Metrics receives capture counters. Implementations must not block.
type Metrics interface {
	FrameAccepted()
	FrameDiscarded()
	Fault(terminal bool)
}

type SessionOpts struct {
	Capture  audio.Capture
	DeviceID string
	// OnLevel is called on the producer goroutine for every buffered frame.
	OnLevel   func(audio.Level)
	LiveQueue bool
	Logger    zerolog.Logger
	Metrics   Metrics // Optional
	Now       func() time.Time
}

// Stats counts what the producer delivered to the session.
type Stats struct {
	Accepted  int
	Discarded int
	Faults    int
}

type Session struct {
	id       string
	capture  audio.Capture
	deviceID string
	onLevel  func(audio.Level)
	live     *FrameQueue
	log      zerolog.Logger
	metrics  Metrics
	now      func() time.Time

	mu        sync.Mutex
	state     State
	opening   bool
	stream    audio.Stream
	frames    []audio.Frame
	taken     bool
	startedAt time.Time
	stats     Stats

	done     chan struct{}
	doneOnce sync.Once
}

func NewSession(opts SessionOpts) *Session {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Session{
		id:       uuid.NewString(),
		capture:  opts.Capture,
		deviceID: opts.DeviceID,
		onLevel:  opts.OnLevel,
		metrics:  opts.Metrics,
		now:      now,
		done:     make(chan struct{}),
	}
	s.log = opts.Logger.With().Str("session", s.id).Logger()
	if opts.LiveQueue {
		s.live = newFrameQueue()
	}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the session reaches Stopped, either through Stop or a
// terminal device fault.
func (s *Session) Done() <-chan struct{} { return s.done }

// Live returns the live frame queue, or nil if the session was created
// without one.
func (s *Session) Live() *FrameQueue { return s.live }

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Start opens the device and begins buffering frames. On failure the
// session stays Idle and the error matches audio.ErrDeviceUnavailable.
func (s *Session) Start() (string, error) {
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return "", ErrStopped
	}
	if s.state != Idle || s.opening {
		s.mu.Unlock()
		return "", ErrAlreadyStarted
	}
	s.opening = true
	s.startedAt = s.now()
	s.mu.Unlock()

	// Open may block on the driver; frames it delivers before returning are
	// accepted because opening is set.
	stream, err := s.capture.Open(audio.DefaultParams(s.deviceID), sink{s})

	s.mu.Lock()
	s.opening = false
	if err != nil {
		if s.state == Idle {
			s.startedAt = time.Time{}
		}
		s.mu.Unlock()
		if !errors.Is(err, audio.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", audio.ErrDeviceUnavailable, err)
		}
		s.log.Error().Err(err).Msg("Failed to open capture device")
		return "", err
	}
	if s.state == Stopped {
		// Stopped while the device was opening.
		s.mu.Unlock()
		stream.Close()
		return "", ErrStopped
	}
	s.state = Recording
	s.stream = stream
	s.mu.Unlock()

	s.log.Info().Str("device", s.deviceID).Msg("Recording started")
	return s.id, nil
}

func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Recording {
		return
	}
	s.state = Paused
	s.log.Info().Msg("Recording paused")
}

func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Paused {
		return
	}
	s.state = Recording
	s.log.Info().Msg("Recording resumed")
}

// Stop moves the session to Stopped, releases the device and returns every
// buffered frame in arrival order. It returns nil when nothing was buffered
// and on every call after the first.
func (s *Session) Stop() *audio.Recording {
	s.mu.Lock()
	if s.taken {
		s.mu.Unlock()
		return nil
	}
	s.taken = true
	prev := s.state
	s.state = Stopped
	frames := s.frames
	s.frames = nil
	stream := s.stream
	s.stream = nil
	startedAt := s.startedAt
	s.mu.Unlock()

	// The producer takes s.mu, so the stream is closed without holding it.
	if stream != nil {
		if err := stream.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to close capture stream")
		}
	}
	s.finish()

	s.log.Info().
		Str("from", prev.String()).
		Int("frames", len(frames)).
		Msg("Recording stopped")

	if len(frames) == 0 {
		return nil
	}
	return audio.NewRecording(audio.RecordingName(startedAt), frames)
}

func (s *Session) finish() {
	s.live.close()
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) accepting() bool {
	return s.state == Recording || (s.state == Idle && s.opening)
}

func (s *Session) onFrame(f audio.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.accepting() {
		s.stats.Discarded++
		if s.metrics != nil {
			s.metrics.FrameDiscarded()
		}
		return
	}

	s.frames = append(s.frames, f)
	s.stats.Accepted++
	if s.live != nil {
		s.live.push(f)
	}
	if s.onLevel != nil {
		s.onLevel(audio.PeakLevel(f))
	}
	if s.metrics != nil {
		s.metrics.FrameAccepted()
	}
}

func (s *Session) onFault(err error) {
	terminal := errors.Is(err, audio.ErrDeviceLost)
	if s.metrics != nil {
		s.metrics.Fault(terminal)
	}

	s.mu.Lock()
	s.stats.Faults++
	if !terminal {
		s.mu.Unlock()
		s.log.Warn().Err(err).Msg("Capture fault, continuing")
		return
	}
	if s.state == Stopped {
		s.mu.Unlock()
		return
	}
	s.state = Stopped
	s.mu.Unlock()

	// The stream is released by the next Stop; closing it here would wait on
	// the goroutine that is calling us.
	s.log.Error().Err(err).Msg("Capture device lost, stopping session")
	s.finish()
}

// sink adapts a Session to audio.FrameSink without exporting the callbacks.
type sink struct{ s *Session }

func (k sink) OnFrame(f audio.Frame) { k.s.onFrame(f) }
func (k sink) OnFault(err error)     { k.s.onFault(err) }
