// Package share hands consultation results to other applications through the
// system clipboard.
package share

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
)

// ErrPasteUnsupported is returned where no paste shortcut can be sent.
var ErrPasteUnsupported = errors.New("paste not supported on this platform")

// Sharer copies text to the clipboard and optionally pastes it into the
// focused window.
type Sharer struct {
	write    func(string) error
	read     func() (string, error)
	shortcut func() error
	settle   time.Duration
}

// New creates a Sharer backed by the system clipboard.
func New() *Sharer {
	return &Sharer{
		write:    clipboard.WriteAll,
		read:     clipboard.ReadAll,
		shortcut: sendPasteShortcut,
		settle:   50 * time.Millisecond,
	}
}

// Copy puts text on the clipboard.
func (s *Sharer) Copy(text string) error {
	if err := s.write(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}

// Paste injects text using clipboard + paste shortcut, then restores the
// previous clipboard contents if nobody changed them in the meantime.
func (s *Sharer) Paste(ctx context.Context, text string) error {
	oldClip, err := s.read()
	if err != nil {
		oldClip = "" // If clipboard read fails, proceed anyway
	}

	if err := s.Copy(text); err != nil {
		return err
	}

	if err := sleep(ctx, s.settle); err != nil {
		return err
	}
	if err := s.shortcut(); err != nil {
		return fmt.Errorf("failed to send paste shortcut: %w", err)
	}
	// Wait a bit for paste to complete
	if err := sleep(ctx, 2*s.settle); err != nil {
		return err
	}

	if current, _ := s.read(); current == text {
		_ = s.write(oldClip)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
