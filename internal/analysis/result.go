// Package analysis turns a consultation recording into a structured
// transcript, question/answer breakdown and summary using a remote model.
package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransport covers network, auth and quota failures talking to the model.
	ErrTransport = errors.New("analysis transport failure")
	// ErrFormat means a response arrived but did not hold a usable result.
	ErrFormat = errors.New("analysis response format failure")
	// ErrEmptyAudio is returned when there is no audio to send.
	ErrEmptyAudio = errors.New("no audio to analyze")
)

// Utterance is one transcript line attributed to a speaker.
type Utterance struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Result is the structured analysis of one consultation.
type Result struct {
	Transcript []Utterance                  `json:"transcript"`
	QAAnalysis map[string]map[string]string `json:"qa_analysis"`
	Summary    map[string]string            `json:"summary"`

	raw json.RawMessage
}

// Raw returns the JSON document the result was parsed from, or nil for a
// result built in code.
func (r *Result) Raw() json.RawMessage { return r.raw }

// MarshalJSON emits the original document when there is one so key order and
// any extra fields the model returned survive.
func (r *Result) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, r.raw); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	type plain Result
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode((*plain)(r)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SummaryField returns a summary entry or "" when absent.
func (r *Result) SummaryField(name string) string {
	if r == nil {
		return ""
	}
	return r.Summary[name]
}

const (
	jsonFence = "```json"
	fence     = "```"
)

// ExtractJSON pulls the JSON payload out of a model response. A fence tagged
// json wins; otherwise the first generic fence is used; otherwise the whole
// text. An unterminated fence runs to the end of the text.
func ExtractJSON(text string) string {
	if _, after, ok := strings.Cut(text, jsonFence); ok {
		body, _, _ := strings.Cut(after, fence)
		return strings.TrimSpace(body)
	}
	if _, after, ok := strings.Cut(text, fence); ok {
		body, _, _ := strings.Cut(after, fence)
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(text)
}

type wireResult struct {
	Transcript *[]Utterance                  `json:"transcript"`
	QAAnalysis *map[string]map[string]string `json:"qa_analysis"`
	Summary    *map[string]string            `json:"summary"`
}

// Parse extracts and validates a result from a model response. Every error
// wraps ErrFormat.
func Parse(text string) (*Result, error) {
	payload := ExtractJSON(text)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrFormat)
	}

	var w wireResult
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	var missing []string
	if w.Transcript == nil {
		missing = append(missing, "transcript")
	}
	if w.QAAnalysis == nil {
		missing = append(missing, "qa_analysis")
	}
	if w.Summary == nil {
		missing = append(missing, "summary")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrFormat, strings.Join(missing, ", "))
	}

	return &Result{
		Transcript: *w.Transcript,
		QAAnalysis: *w.QAAnalysis,
		Summary:    *w.Summary,
		raw:        json.RawMessage(payload),
	}, nil
}
