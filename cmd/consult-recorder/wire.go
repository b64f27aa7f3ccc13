package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/consult-recorder/internal/analysis"
	"github.com/petems/consult-recorder/internal/app"
	"github.com/petems/consult-recorder/internal/audio"
	"github.com/petems/consult-recorder/internal/audio/malgo"
	"github.com/petems/consult-recorder/internal/audio/portaudio"
	"github.com/petems/consult-recorder/internal/config"
	"github.com/petems/consult-recorder/internal/consultation"
	"github.com/petems/consult-recorder/internal/logging"
	"github.com/petems/consult-recorder/internal/metrics"
	"github.com/petems/consult-recorder/internal/permissions"
	"github.com/petems/consult-recorder/internal/server"
)

type buildOpts struct {
	// live opens the capture backend and the HTTP API.
	live bool
	// persist saves consultations to disk, the index and the archive.
	persist bool
}

// services holds everything a command needs, built from config.
type services struct {
	cfg     *config.Config
	log     zerolog.Logger
	capture audio.Capture
	index   *consultation.Index
	app     *app.App
	server  *server.Server

	shutdownOnce sync.Once
	closeOnce    sync.Once
}

func loadConfig(flags *rootFlags) (*config.Config, zerolog.Logger, error) {
	// Load config from XDG/Library/AppData
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, logging.New(), fmt.Errorf("failed to load config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.listen != "" {
		cfg.Server.Listen = flags.listen
	}

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.LogLevel)
	log.Debug().Str("config", cfg.Path()).Msg("Config loaded")
	return cfg, log, nil
}

func newCapture(backend string) (audio.Capture, error) {
	switch backend {
	case "", "portaudio":
		return portaudio.New()
	case "malgo":
		return malgo.New()
	default:
		return nil, fmt.Errorf("unknown audio backend %q (want portaudio or malgo)", backend)
	}
}

func openIndex(cfg *config.Config) (*consultation.Index, error) {
	path := cfg.Storage.IndexPath
	if path == "" {
		path = filepath.Join(config.DataPath(), "consultations.sqlite")
	}
	index, err := consultation.OpenIndex(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open consultation index: %w", err)
	}
	return index, nil
}

func build(ctx context.Context, flags *rootFlags, opts buildOpts) (*services, error) {
	cfg, log, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	s := &services{cfg: cfg, log: log}

	m, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	gemini, err := analysis.NewGemini(ctx, analysis.GeminiConfig{
		APIKey:          cfg.Analysis.APIKey,
		Model:           cfg.Analysis.Model,
		Endpoint:        cfg.Analysis.Endpoint,
		Temperature:     cfg.Analysis.Temperature,
		TopP:            cfg.Analysis.TopP,
		TopK:            cfg.Analysis.TopK,
		MaxOutputTokens: cfg.Analysis.MaxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize analysis: %w (set GEMINI_API_KEY)", err)
	}
	pipeline := analysis.New(analysis.Config{
		Generator: gemini,
		Logger:    log.With().Str("component", "analysis").Logger(),
		Metrics:   m,
	})

	appCfg := app.Config{
		Analyzer: pipeline,
		Config:   cfg,
		Logger:   log,
		Metrics:  m,
	}

	if opts.persist {
		if s.index, err = openIndex(cfg); err != nil {
			return nil, err
		}
		rc := consultation.Config{
			Dir:    cfg.Storage.ConsultationsDir,
			Index:  s.index,
			Logger: log.With().Str("component", "consultation").Logger(),
		}
		if cfg.Archive.Bucket != "" {
			archive, err := consultation.NewS3Archive(ctx, consultation.S3Config{
				Bucket: cfg.Archive.Bucket,
				Prefix: cfg.Archive.Prefix,
				Region: cfg.Archive.Region,
			})
			if err != nil {
				s.close()
				return nil, fmt.Errorf("failed to initialize archive: %w", err)
			}
			rc.Archive = archive
			log.Info().Str("bucket", cfg.Archive.Bucket).Msg("Archiving consultations to S3")
		}
		appCfg.Recorder = consultation.NewRecorder(rc)
	}

	if opts.live {
		// macOS requires explicit microphone approval before capture works
		if err := permissions.EnsureMicrophone(); err != nil {
			s.close()
			return nil, err
		}
		if s.capture, err = newCapture(cfg.Audio.Backend); err != nil {
			s.close()
			return nil, fmt.Errorf("failed to initialize audio: %w", err)
		}
		appCfg.Audio = s.capture
	}

	s.app = app.New(appCfg)

	if opts.live {
		srv := server.Config{
			Listen:     cfg.Server.Listen,
			Controller: s.app,
			Gatherer:   m.Registry(),
			Logger:     log,
		}
		if s.index != nil {
			srv.History = s.index
		}
		s.server = server.New(srv)
	}

	return s, nil
}

// shutdown stops open sessions and waits for pending analyses.
func (s *services) shutdown() {
	s.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Analysis.Timeout()+10*time.Second)
		defer cancel()
		if err := s.app.Shutdown(ctx); err != nil {
			s.log.Error().Err(err).Msg("Shutdown error")
		}
	})
}

func (s *services) close() {
	s.closeOnce.Do(func() {
		if s.capture != nil {
			s.capture.Close()
		}
		if s.index != nil {
			s.index.Close()
		}
	})
}
