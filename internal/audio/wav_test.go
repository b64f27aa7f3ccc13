package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testFrames(n int) []Frame {
	frames := make([]Frame, n)
	for i := range frames {
		f := make(Frame, FrameSamples)
		for j := range f {
			f[j] = int16((i*FrameSamples+j)%65536 - 32768)
		}
		frames[i] = f
	}
	return frames
}

func TestRecordingName(t *testing.T) {
	ts := time.Date(2025, 3, 17, 12, 11, 12, 0, time.Local)
	if got := RecordingName(ts); got != "recording_20250317_121112.wav" {
		t.Errorf("unexpected name %q", got)
	}
}

func TestRecordingWAVRoundTrip(t *testing.T) {
	rec := NewRecording("recording_20250317_121112.wav", testFrames(5))

	path, err := rec.Save(t.TempDir())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(path) != rec.Name {
		t.Fatalf("expected file %s, got %s", rec.Name, path)
	}

	got, err := LoadWAV(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got.SampleRate != SampleRate || got.Channels != Channels || got.BitDepth != BitDepth {
		t.Fatalf("metadata mismatch: %d Hz, %d ch, %d bit", got.SampleRate, got.Channels, got.BitDepth)
	}

	want := rec.Samples()
	have := got.Samples()
	if len(have) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(have))
	}
	for i := range want {
		if have[i] != want[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, want[i], have[i])
		}
	}
	if len(got.Frames) != 5 {
		t.Errorf("expected 5 frames after reload, got %d", len(got.Frames))
	}
	if got.Duration() != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", got.Duration())
	}
}

func TestRecordingWAVHeaderSize(t *testing.T) {
	rec := NewRecording("r.wav", testFrames(1))
	path, err := rec.Save(t.TempDir())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	// 44-byte canonical header + 2 bytes per sample
	if info.Size() != int64(44+FrameSamples*2) {
		t.Errorf("unexpected file size %d", info.Size())
	}
}

func TestReadWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("definitely not a wave file"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadWAV(path); err == nil {
		t.Fatal("expected error for invalid WAV")
	}
}

func TestRecordingSaveNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	const name = "recording_20250317_121112.wav"

	first, err := NewRecording(name, testFrames(5)).Save(dir)
	if err != nil {
		t.Fatalf("save first: %v", err)
	}
	second := NewRecording(name, testFrames(2))
	secondPath, err := second.Save(dir)
	if err != nil {
		t.Fatalf("save second: %v", err)
	}

	if filepath.Base(first) != name {
		t.Errorf("first recording should keep its name, got %s", first)
	}
	if filepath.Base(secondPath) != "recording_20250317_121112_2.wav" {
		t.Errorf("expected suffixed name, got %s", secondPath)
	}
	if second.Name != filepath.Base(secondPath) {
		t.Errorf("Name should follow the file, got %s", second.Name)
	}

	got, err := LoadWAV(first)
	if err != nil {
		t.Fatalf("load first: %v", err)
	}
	if len(got.Frames) != 5 {
		t.Errorf("first recording was overwritten: %d frames", len(got.Frames))
	}
}

func TestRecordingSaveRejectsUnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewRecording("r.wav", testFrames(1)).Save(filepath.Join(blocker, "sub")); err == nil {
		t.Error("expected error saving under a regular file")
	}
}
