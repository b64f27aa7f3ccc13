package logging

import (
	"bytes"
	"encoding/json"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerFiltersAndWritesJSONToFile(t *testing.T) {
	var console, file bytes.Buffer
	log := newLogger("warn", &console, &file)

	log.Info().Msg("hidden")
	log.Warn().Str("session", "abc").Msg("shown")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(file.Bytes()), &entry); err != nil {
		t.Fatalf("expected one JSON line in file output, got %q: %v", file.String(), err)
	}
	if entry["message"] != "shown" || entry["session"] != "abc" {
		t.Errorf("unexpected entry %v", entry)
	}
	if _, ok := entry["caller"]; !ok {
		t.Error("expected caller field")
	}
	if console.Len() == 0 {
		t.Error("expected console output")
	}
}

func TestNewLoggerWithoutFile(t *testing.T) {
	var console bytes.Buffer
	log := newLogger("info", &console, nil)
	log.Info().Msg("hello")
	if !bytes.Contains(console.Bytes(), []byte("hello")) {
		t.Errorf("expected message on console, got %q", console.String())
	}
}

func TestGetLogPathUsesXDGState(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG paths are linux only")
	}
	t.Setenv("XDG_STATE_HOME", "/tmp/state")
	if got := getLogPath(); got != "/tmp/state/consult-recorder/consult-recorder.log" {
		t.Errorf("unexpected log path %q", got)
	}
}
