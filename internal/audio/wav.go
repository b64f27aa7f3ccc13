package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavPCM is the WAVE format tag for uncompressed PCM.
const wavPCM = 1

// Recording is a finished capture. It is written once and read-only afterwards.
type Recording struct {
	Name       string
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     []Frame
}

// RecordingName returns the file name for a recording started at t.
func RecordingName(t time.Time) string {
	return fmt.Sprintf("recording_%s.wav", t.Format("20060102_150405"))
}

// NewRecording wraps frames captured in the fixed capture format.
func NewRecording(name string, frames []Frame) *Recording {
	return &Recording{
		Name:       name,
		SampleRate: SampleRate,
		Channels:   Channels,
		BitDepth:   BitDepth,
		Frames:     frames,
	}
}

// SampleCount returns the total number of samples across all frames.
func (r *Recording) SampleCount() int {
	n := 0
	for _, f := range r.Frames {
		n += len(f)
	}
	return n
}

// Duration returns the playback length of the recording.
func (r *Recording) Duration() time.Duration {
	if r.SampleRate == 0 {
		return 0
	}
	return time.Duration(r.SampleCount()) * time.Second / time.Duration(r.SampleRate)
}

// Samples returns all samples in frame order.
func (r *Recording) Samples() []int16 {
	out := make([]int16, 0, r.SampleCount())
	for _, f := range r.Frames {
		out = append(out, f...)
	}
	return out
}

// WriteWAV encodes the recording as a PCM WAV container.
func (r *Recording) WriteWAV(w io.WriteSeeker) error {
	data := make([]int, 0, r.SampleCount())
	for _, f := range r.Frames {
		for _, s := range f {
			data = append(data, int(s))
		}
	}

	enc := wav.NewEncoder(w, r.SampleRate, r.BitDepth, r.Channels, wavPCM)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: r.Channels,
			SampleRate:  r.SampleRate,
		},
		Data:           data,
		SourceBitDepth: r.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return fmt.Errorf("failed to write to WAV encoder: %w", err)
	}
	return enc.Close()
}

// maxNameCollisions bounds the _N suffixes Save tries for one name.
const maxNameCollisions = 1000

// Save writes the recording to dir/Name and returns the full path. An
// existing file is never replaced: if the name is taken, Save uses
// name_2.wav, name_3.wav... and updates Name to match.
func (r *Recording) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create recordings directory: %w", err)
	}

	ext := filepath.Ext(r.Name)
	stem := strings.TrimSuffix(r.Name, ext)

	for i := 1; i <= maxNameCollisions; i++ {
		name := r.Name
		if i > 1 {
			name = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create file: %w", err)
		}

		werr := r.WriteWAV(f)
		cerr := f.Close()
		if werr == nil && cerr != nil {
			werr = fmt.Errorf("failed to close file: %w", cerr)
		}
		if werr != nil {
			os.Remove(path)
			return "", werr
		}
		r.Name = name
		return path, nil
	}
	return "", fmt.Errorf("no free file name for %s", r.Name)
}

// ReadWAV decodes a 16-bit PCM WAV stream back into a Recording, regrouping
// samples into FrameSamples-sized frames (the last frame may be shorter).
func ReadWAV(name string, rs io.ReadSeeker) (*Recording, error) {
	dec := wav.NewDecoder(rs)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, errors.New("invalid WAV file format")
	}
	if dec.BitDepth != BitDepth {
		return nil, fmt.Errorf("unsupported bit depth: %d", dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}

	rec := &Recording{
		Name:       name,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	for start := 0; start < len(buf.Data); start += FrameSamples {
		end := min(start+FrameSamples, len(buf.Data))
		frame := make(Frame, end-start)
		for i, v := range buf.Data[start:end] {
			frame[i] = int16(v)
		}
		rec.Frames = append(rec.Frames, frame)
	}
	return rec, nil
}

// LoadWAV opens and decodes the WAV file at path.
func LoadWAV(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadWAV(filepath.Base(path), f)
}
