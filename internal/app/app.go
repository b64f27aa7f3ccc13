package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/consult-recorder/internal/analysis"
	"github.com/petems/consult-recorder/internal/audio"
	"github.com/petems/consult-recorder/internal/capture"
	"github.com/petems/consult-recorder/internal/config"
	"github.com/petems/consult-recorder/internal/consultation"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrShuttingDown    = errors.New("shutting down")
	ErrAnalysisFailed  = errors.New("analysis failed")
)

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetRecording()
	SetPaused()
	SetProcessing()
	SetError()
}

// Analyzer turns WAV bytes into a result, returning nil on any failure.
type Analyzer interface {
	Analyze(ctx context.Context, wav []byte) *analysis.Result
}

// Persister stores a finished consultation.
type Persister interface {
	Save(ctx context.Context, c *consultation.Consultation) (string, error)
}

// Metrics is the optional instrumentation the app reports to.
type Metrics interface {
	capture.Metrics
	SessionOpened()
	SessionClosed()
	PersistenceFailed(stage string)
}

type Config struct {
	Audio         audio.Capture
	Analyzer      Analyzer
	Recorder      Persister // Optional
	Config        *config.Config
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
	Metrics       Metrics       // Optional
}

// SessionInfo describes a registered session.
type SessionInfo struct {
	ID        string        `json:"id"`
	State     string        `json:"state"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Stats     capture.Stats `json:"stats"`
}

// App owns the session registry and runs analysis for stopped sessions.
type App struct {
	audio    audio.Capture
	analyzer Analyzer
	recorder Persister
	cfg      *config.Config
	log      zerolog.Logger
	status   StatusUpdater
	metrics  Metrics
	events   *Broadcaster

	mu         sync.Mutex
	sessions   map[string]*capture.Session
	order      []string
	lastResult *analysis.Result
	closing    bool

	workers sync.WaitGroup
}

func New(cfg Config) *App {
	return &App{
		audio:    cfg.Audio,
		analyzer: cfg.Analyzer,
		recorder: cfg.Recorder,
		cfg:      cfg.Config,
		log:      cfg.Logger,
		status:   cfg.StatusUpdater,
		metrics:  cfg.Metrics,
		events:   NewBroadcaster(),
		sessions: make(map[string]*capture.Session),
	}
}

// SetStatusUpdater sets the status sink (for circular dependency resolution)
func (a *App) SetStatusUpdater(s StatusUpdater) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

// Subscribe returns a stream of events and a func to stop receiving them.
func (a *App) Subscribe() (<-chan Event, func()) {
	return a.events.Subscribe()
}

// StartSession opens the configured device in a new session.
func (a *App) StartSession() (string, error) {
	a.mu.Lock()
	if a.closing {
		a.mu.Unlock()
		return "", ErrShuttingDown
	}
	deviceID := a.cfg.Audio.DeviceID
	a.mu.Unlock()

	var id string
	opts := capture.SessionOpts{
		Capture:  a.audio,
		DeviceID: deviceID,
		OnLevel: func(l audio.Level) {
			level := int(l)
			a.events.Publish(Event{Type: EventAudioLevel, SessionID: id, Level: &level})
		},
		Logger: a.log,
	}
	if a.metrics != nil {
		opts.Metrics = a.metrics
	}
	s := capture.NewSession(opts)
	id = s.ID()

	if _, err := s.Start(); err != nil {
		a.log.Error().Err(err).Msg("Failed to start recording")
		a.setStatus(StatusUpdater.SetError)
		return "", err
	}

	// Shutdown may have started while the device was opening.
	a.mu.Lock()
	if a.closing {
		a.mu.Unlock()
		s.Stop()
		return "", ErrShuttingDown
	}
	a.sessions[id] = s
	a.order = append(a.order, id)
	a.workers.Add(1)
	a.mu.Unlock()
	if a.metrics != nil {
		a.metrics.SessionOpened()
	}

	a.publishState(s)
	a.setStatus(StatusUpdater.SetRecording)

	go a.watch(s)

	return id, nil
}

// watch finishes a session that ended on its own after a device fault.
func (a *App) watch(s *capture.Session) {
	defer a.workers.Done()
	<-s.Done()
	if err := a.StopSession(s.ID()); err == nil {
		a.log.Warn().Str("session", s.ID()).Msg("Session ended by device, processing captured audio")
	}
}

func (a *App) lookup(id string) (*capture.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

func (a *App) PauseSession(id string) error {
	s, err := a.lookup(id)
	if err != nil {
		return err
	}
	s.Pause()
	a.publishState(s)
	if s.State() == capture.Paused {
		a.setStatus(StatusUpdater.SetPaused)
	}
	return nil
}

func (a *App) ResumeSession(id string) error {
	s, err := a.lookup(id)
	if err != nil {
		return err
	}
	s.Resume()
	a.publishState(s)
	if s.State() == capture.Recording {
		a.setStatus(StatusUpdater.SetRecording)
	}
	return nil
}

// StopSession stops and unregisters a session, then saves and analyzes its
// recording on a background worker. The result arrives as an
// EventAudioAnalysis event.
func (a *App) StopSession(id string) error {
	a.mu.Lock()
	s, ok := a.sessions[id]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(a.sessions, id)
	for i, sid := range a.order {
		if sid == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	a.workers.Add(1)
	a.mu.Unlock()

	rec := s.Stop()
	if a.metrics != nil {
		a.metrics.SessionClosed()
	}
	a.publishState(s)

	go func() {
		defer a.workers.Done()
		a.process(id, rec)
	}()
	return nil
}

// process mirrors the stop flow: save WAV, read it back, analyze, persist, notify.
func (a *App) process(sessionID string, rec *audio.Recording) {
	log := a.log.With().Str("session", sessionID).Logger()

	if rec == nil {
		log.Info().Msg("No audio recorded")
		a.publishAnalysisError(sessionID, "No audio recorded")
		a.setStatus(StatusUpdater.SetIdle)
		return
	}

	a.setStatus(StatusUpdater.SetProcessing)

	path, err := rec.Save(a.cfg.Storage.RecordingsDir)
	if err != nil {
		log.Error().Err(err).Msg("Failed to save recording")
		a.persistenceFailed("recording")
		a.publishAnalysisError(sessionID, fmt.Sprintf("Failed to save recording: %v", err))
		a.setStatus(StatusUpdater.SetError)
		return
	}
	log.Info().
		Str("path", path).
		Dur("duration", rec.Duration()).
		Msg("Recording saved")

	if _, err := a.analyzeFile(sessionID, path); err != nil {
		a.publishAnalysisError(sessionID, failureMessage(err))
		a.setStatus(StatusUpdater.SetError)
		return
	}
	a.setStatus(StatusUpdater.SetIdle)
}

// AnalyzeFile analyzes and persists an existing WAV file, publishing the
// same events as a stopped session.
func (a *App) AnalyzeFile(path string) (*analysis.Result, error) {
	res, err := a.analyzeFile("", path)
	if err != nil {
		a.publishAnalysisError("", failureMessage(err))
		return nil, err
	}
	return res, nil
}

func (a *App) analyzeFile(sessionID, path string) (*analysis.Result, error) {
	wav, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Analysis.Timeout())
	defer cancel()

	res := a.analyzer.Analyze(ctx, wav)
	if res == nil {
		return nil, ErrAnalysisFailed
	}

	a.mu.Lock()
	a.lastResult = res
	a.mu.Unlock()

	a.events.Publish(Event{
		Type:      EventAudioAnalysis,
		SessionID: sessionID,
		Status:    StatusSuccess,
		Data:      res,
	})

	if a.recorder != nil {
		saved, err := a.recorder.Save(ctx, &consultation.Consultation{
			SessionID:     sessionID,
			RecordingPath: path,
			Result:        res,
		})
		if err != nil {
			// The result already reached the UI; persistence problems are logged only.
			a.log.Error().Err(err).Str("path", saved).Msg("Failed to save consultation")
			a.persistenceFailed("consultation")
		}
	}
	return res, nil
}

func (a *App) publishAnalysisError(sessionID, msg string) {
	a.events.Publish(Event{
		Type:      EventAudioAnalysis,
		SessionID: sessionID,
		Status:    StatusError,
		Message:   msg,
	})
}

// failureMessage is the text shown to the user for a failed analysis.
func failureMessage(err error) string {
	if errors.Is(err, ErrAnalysisFailed) {
		return "Failed to analyze audio"
	}
	return err.Error()
}

func (a *App) publishState(s *capture.Session) {
	a.events.Publish(Event{Type: EventState, SessionID: s.ID(), State: s.State().String()})
}

func (a *App) persistenceFailed(stage string) {
	if a.metrics != nil {
		a.metrics.PersistenceFailed(stage)
	}
}

func (a *App) setStatus(fn func(StatusUpdater)) {
	a.mu.Lock()
	s := a.status
	a.mu.Unlock()
	if s != nil {
		fn(s)
	}
}

// Sessions lists registered sessions, oldest first.
func (a *App) Sessions() []SessionInfo {
	a.mu.Lock()
	list := make([]*capture.Session, 0, len(a.order))
	for _, id := range a.order {
		list = append(list, a.sessions[id])
	}
	a.mu.Unlock()

	now := time.Now()
	infos := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		started := s.StartedAt()
		infos = append(infos, SessionInfo{
			ID:        s.ID(),
			State:     s.State().String(),
			StartedAt: started,
			Elapsed:   now.Sub(started),
			Stats:     s.Stats(),
		})
	}
	sort.SliceStable(infos, func(i, j int) bool { return infos[i].StartedAt.Before(infos[j].StartedAt) })
	return infos
}

// ActiveSession returns the most recently started registered session.
func (a *App) ActiveSession() (SessionInfo, bool) {
	infos := a.Sessions()
	if len(infos) == 0 {
		return SessionInfo{}, false
	}
	return infos[len(infos)-1], true
}

// LastResult returns the most recent successful analysis, or nil.
func (a *App) LastResult() *analysis.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastResult
}

// Shutdown stops every session and waits for pending analyses or ctx.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	a.closing = true
	ids := append([]string(nil), a.order...)
	a.mu.Unlock()

	for _, id := range ids {
		if err := a.StopSession(id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			a.log.Error().Err(err).Str("session", id).Msg("Failed to stop session")
		}
	}

	done := make(chan struct{})
	go func() {
		a.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tray actions

func (a *App) SetDevice(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.sessions) > 0 {
		return fmt.Errorf("cannot change while recording")
	}

	a.cfg.Audio.DeviceID = id
	return a.cfg.Save()
}

func (a *App) DeviceID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Audio.DeviceID
}

func (a *App) IsRecording() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions) > 0
}

func (a *App) ListDevices() ([]audio.AudioDevice, error) {
	return a.audio.ListDevices()
}
