package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Generator sends a prompt plus audio to a remote model and returns its text reply.
type Generator interface {
	Generate(ctx context.Context, prompt string, audio []byte, mimeType string) (string, error)
}

// Outcome labels for logs and metrics.
const (
	OutcomeSuccess   = "success"
	OutcomeTransport = "transport_error"
	OutcomeFormat    = "format_error"
	OutcomeEmpty     = "empty_audio"
	OutcomeInternal  = "internal_error"
)

// Metrics records one observation per Analyze call.
type Metrics interface {
	ObserveAnalysis(outcome string, d time.Duration)
}

type Config struct {
	Generator Generator
	Logger    zerolog.Logger
	Metrics   Metrics // Optional
}

// Pipeline is safe for concurrent use if its Generator is.
type Pipeline struct {
	gen     Generator
	log     zerolog.Logger
	metrics Metrics
}

func New(cfg Config) *Pipeline {
	return &Pipeline{
		gen:     cfg.Generator,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Analyze makes a single attempt to analyze a WAV payload. Any failure is
// logged and reported as nil; callers only branch on success. Callers should
// bound ctx since the remote call has no timeout of its own.
func (p *Pipeline) Analyze(ctx context.Context, wav []byte) *Result {
	start := time.Now()
	res, err := p.analyze(ctx, wav)
	elapsed := time.Since(start)

	outcome := Outcome(err)
	if p.metrics != nil {
		p.metrics.ObserveAnalysis(outcome, elapsed)
	}

	if err != nil {
		p.log.Error().
			Err(err).
			Str("outcome", outcome).
			Str("prompt_version", PromptVersion).
			Dur("elapsed", elapsed).
			Msg("Audio analysis failed")
		return nil
	}

	p.log.Info().
		Str("prompt_version", PromptVersion).
		Int("utterances", len(res.Transcript)).
		Int("sections", len(res.QAAnalysis)).
		Dur("elapsed", elapsed).
		Msg("Audio analysis complete")
	return res
}

func (p *Pipeline) analyze(ctx context.Context, wav []byte) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("analysis panicked: %v", r)
		}
	}()

	if len(wav) == 0 {
		return nil, ErrEmptyAudio
	}

	text, err := p.gen.Generate(ctx, Prompt, wav, AudioMIMEType)
	if err != nil {
		if errors.Is(err, ErrFormat) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	p.log.Debug().Int("response_len", len(text)).Msg("Model responded")

	return Parse(text)
}

// Outcome classifies an analysis error into a metrics label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrEmptyAudio):
		return OutcomeEmpty
	case errors.Is(err, ErrFormat):
		return OutcomeFormat
	case errors.Is(err, ErrTransport):
		return OutcomeTransport
	default:
		return OutcomeInternal
	}
}
