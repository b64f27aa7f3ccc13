// Package consultation persists analysis results: one JSON document per
// consultation, an SQLite index over them and an optional S3 archive.
package consultation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/petems/consult-recorder/internal/analysis"
)

// Consultation is what gets handed to persistence after a successful analysis.
type Consultation struct {
	ID            string
	SessionID     string
	RecordingPath string
	Result        *analysis.Result
	CreatedAt     time.Time
}

// Archiver uploads finished artifacts to long-term storage.
type Archiver interface {
	Put(ctx context.Context, key, contentType string, body io.ReadSeeker) error
}

type Config struct {
	Dir     string
	Index   *Index   // Optional
	Archive Archiver // Optional
	Logger  zerolog.Logger
}

type Recorder struct {
	dir     string
	index   *Index
	archive Archiver
	log     zerolog.Logger
}

func NewRecorder(cfg Config) *Recorder {
	return &Recorder{
		dir:     cfg.Dir,
		index:   cfg.Index,
		archive: cfg.Archive,
		log:     cfg.Logger,
	}
}

// FileName returns the document name for a consultation created at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("consultation_%s.json", t.Format("20060102_150405"))
}

// maxCollisions bounds the _N suffix search for a free file name.
const maxCollisions = 100

// Save writes the consultation document and returns its path. Index and
// archive failures are returned after the document is safely on disk, so a
// non-empty path means the document exists.
func (r *Recorder) Save(ctx context.Context, c *Consultation) (string, error) {
	if c == nil || c.Result == nil {
		return "", errors.New("no analysis result to save")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	doc, err := Document(c.Result)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create consultations directory: %w", err)
	}
	path, err := writeExclusive(r.dir, FileName(c.CreatedAt), doc)
	if err != nil {
		return "", err
	}
	r.log.Info().Str("path", path).Str("session", c.SessionID).Msg("Consultation saved")

	var errs []error
	if r.index != nil {
		if err := r.index.Add(ctx, entryFor(c, path)); err != nil {
			errs = append(errs, fmt.Errorf("failed to index consultation: %w", err))
		}
	}
	if r.archive != nil {
		if err := r.archiveFiles(ctx, path, c.RecordingPath); err != nil {
			errs = append(errs, err)
		}
	}
	return path, errors.Join(errs...)
}

func (r *Recorder) archiveFiles(ctx context.Context, docPath, recordingPath string) error {
	if err := r.putFile(ctx, "consultations/"+filepath.Base(docPath), "application/json", docPath); err != nil {
		return err
	}
	if recordingPath == "" {
		return nil
	}
	return r.putFile(ctx, "recordings/"+filepath.Base(recordingPath), "audio/wav", recordingPath)
}

func (r *Recorder) putFile(ctx context.Context, key, contentType, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s for archiving: %w", path, err)
	}
	defer f.Close()

	if err := r.archive.Put(ctx, key, contentType, f); err != nil {
		return fmt.Errorf("failed to archive %s: %w", key, err)
	}
	r.log.Debug().Str("key", key).Msg("Archived")
	return nil
}

// Document renders a result as UTF-8 JSON with 4-space indentation. A parsed
// result is re-indented from the model's own text so key order is kept.
func Document(res *analysis.Result) ([]byte, error) {
	var buf bytes.Buffer
	if raw := res.Raw(); len(raw) > 0 {
		if err := json.Indent(&buf, raw, "", "    "); err != nil {
			return nil, fmt.Errorf("failed to format consultation: %w", err)
		}
		buf.WriteByte('\n')
		return buf.Bytes(), nil
	}

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(res); err != nil {
		return nil, fmt.Errorf("failed to encode consultation: %w", err)
	}
	return buf.Bytes(), nil
}

// writeExclusive creates dir/name, or dir/name_2, name_3... if taken.
func writeExclusive(dir, name string, data []byte) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 1; i <= maxCollisions; i++ {
		candidate := name
		if i > 1 {
			candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		path := filepath.Join(dir, candidate)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create consultation file: %w", err)
		}

		_, werr := f.Write(data)
		cerr := f.Close()
		if werr == nil {
			werr = cerr
		}
		if werr != nil {
			os.Remove(path)
			return "", fmt.Errorf("failed to write consultation file: %w", werr)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free file name for %s", name)
}

func entryFor(c *Consultation, path string) Entry {
	return Entry{
		ID:            c.ID,
		SessionID:     c.SessionID,
		FilePath:      path,
		RecordingPath: c.RecordingPath,
		PromptVersion: analysis.PromptVersion,
		Utterances:    len(c.Result.Transcript),
		Presentation:  c.Result.SummaryField(analysis.SummaryPresentation),
		LifeEffect:    c.Result.SummaryField(analysis.SummaryLifeEffect),
		Goal:          c.Result.SummaryField(analysis.SummaryGoal),
		CreatedAt:     c.CreatedAt,
	}
}
