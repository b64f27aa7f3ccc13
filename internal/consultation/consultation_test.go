package consultation

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petems/consult-recorder/internal/analysis"
)

func mustParse(t *testing.T, text string) *analysis.Result {
	t.Helper()
	res, err := analysis.Parse(text)
	require.NoError(t, err)
	return res
}

type fakeArchive struct {
	mu    sync.Mutex
	keys  []string
	types []string
	data  map[string]string
	err   error
}

func (f *fakeArchive) Put(_ context.Context, key, contentType string, body io.ReadSeeker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if f.data == nil {
		f.data = map[string]string{}
	}
	f.keys = append(f.keys, key)
	f.types = append(f.types, contentType)
	f.data[key] = string(b)
	return nil
}

func TestFileName(t *testing.T) {
	ts := time.Date(2025, 3, 17, 9, 5, 0, 0, time.Local)
	assert.Equal(t, "consultation_20250317_090500.json", FileName(ts))
}

func TestDocumentIndentsAndKeepsNonASCII(t *testing.T) {
	res := mustParse(t, `{"summary":{"goal":"Dormir mieux <sans douleur> & 睡得好"},"transcript":[],"qa_analysis":{}}`)

	doc, err := Document(res)
	require.NoError(t, err)

	want := `{
    "summary": {
        "goal": "Dormir mieux <sans douleur> & 睡得好"
    },
    "transcript": [],
    "qa_analysis": {}
}
`
	assert.Equal(t, want, string(doc))
}

func TestDocumentWithoutRaw(t *testing.T) {
	res := &analysis.Result{
		Transcript: []analysis.Utterance{{Speaker: "Patient", Text: "ça va <mieux>"}},
		QAAnalysis: map[string]map[string]string{},
		Summary:    map[string]string{},
	}

	doc, err := Document(res)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "\n    \"transcript\": [\n")
	assert.Contains(t, string(doc), `"ça va <mieux>"`)
}

func TestRecorderSave(t *testing.T) {
	dir := t.TempDir()
	idx, err := OpenIndex(":memory:")
	require.NoError(t, err)
	defer idx.Close()

	wav := filepath.Join(dir, "recording_20250317_090000.wav")
	require.NoError(t, os.WriteFile(wav, []byte("RIFF"), 0644))

	archive := &fakeArchive{}
	rec := NewRecorder(Config{
		Dir:     filepath.Join(dir, "consultations"),
		Index:   idx,
		Archive: archive,
		Logger:  zerolog.Nop(),
	})

	created := time.Date(2025, 3, 17, 9, 5, 0, 0, time.Local)
	c := &Consultation{
		SessionID:     "session-1",
		RecordingPath: wav,
		Result:        mustParse(t, `{"transcript":[{"speaker":"Doctor","text":"Hello"}],"qa_analysis":{},"summary":{"goal":"Run again"}}`),
		CreatedAt:     created,
	}

	path, err := rec.Save(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "consultations", "consultation_20250317_090500.json"), path)
	assert.NotEmpty(t, c.ID)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{\n    \"transcript\""))

	entries, err := idx.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "session-1", entries[0].SessionID)
	assert.Equal(t, path, entries[0].FilePath)
	assert.Equal(t, "Run again", entries[0].Goal)
	assert.Equal(t, 1, entries[0].Utterances)

	assert.Equal(t, []string{
		"consultations/consultation_20250317_090500.json",
		"recordings/recording_20250317_090000.wav",
	}, archive.keys)
	assert.Equal(t, []string{"application/json", "audio/wav"}, archive.types)
	assert.Equal(t, string(data), archive.data["consultations/consultation_20250317_090500.json"])
}

func TestRecorderSaveAddsSuffixOnCollision(t *testing.T) {
	dir := t.TempDir()
	rec := NewRecorder(Config{Dir: dir, Logger: zerolog.Nop()})
	created := time.Date(2025, 3, 17, 9, 5, 0, 0, time.Local)

	var paths []string
	for i := 0; i < 3; i++ {
		p, err := rec.Save(context.Background(), &Consultation{
			Result:    mustParse(t, `{"transcript":[],"qa_analysis":{},"summary":{}}`),
			CreatedAt: created,
		})
		require.NoError(t, err)
		paths = append(paths, filepath.Base(p))
	}

	assert.Equal(t, []string{
		"consultation_20250317_090500.json",
		"consultation_20250317_090500_2.json",
		"consultation_20250317_090500_3.json",
	}, paths)
}

func TestRecorderSaveArchiveFailureKeepsDocument(t *testing.T) {
	dir := t.TempDir()
	rec := NewRecorder(Config{
		Dir:     dir,
		Archive: &fakeArchive{err: errors.New("access denied")},
		Logger:  zerolog.Nop(),
	})

	path, err := rec.Save(context.Background(), &Consultation{
		Result: mustParse(t, `{"transcript":[],"qa_analysis":{},"summary":{}}`),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.FileExists(t, path)
}

func TestRecorderSaveRequiresResult(t *testing.T) {
	rec := NewRecorder(Config{Dir: t.TempDir(), Logger: zerolog.Nop()})
	path, err := rec.Save(context.Background(), &Consultation{})
	assert.Error(t, err)
	assert.Empty(t, path)
}

func TestRecorderSaveUnwritableDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	rec := NewRecorder(Config{Dir: file, Logger: zerolog.Nop()})
	_, err := rec.Save(context.Background(), &Consultation{
		Result: mustParse(t, `{"transcript":[],"qa_analysis":{},"summary":{}}`),
	})
	assert.Error(t, err)
}
