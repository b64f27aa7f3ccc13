package tray

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/petems/consult-recorder/internal/app"
	"github.com/petems/consult-recorder/internal/capture"
	"github.com/petems/consult-recorder/internal/config"
	"github.com/petems/consult-recorder/internal/permissions"
	"github.com/petems/consult-recorder/internal/share"
)

type UI struct {
	app     *app.App
	cfg     *config.Config
	sharer  *share.Sharer
	version string
	commit  string
	log     zerolog.Logger

	mu        sync.Mutex
	status    string
	startedAt time.Time
	paused    time.Duration
	pausedAt  time.Time

	// Menu items
	mStart    *systray.MenuItem
	mPause    *systray.MenuItem
	mStop     *systray.MenuItem
	mDevices  *systray.MenuItem
	mCopy     *systray.MenuItem
	mCopyFull *systray.MenuItem
	mPaste    *systray.MenuItem
}

// Status update methods for the app to call
func (u *UI) SetIdle() {
	u.updateStatus("idle")
}

func (u *UI) SetRecording() {
	u.updateStatus("recording")
}

func (u *UI) SetPaused() {
	u.updateStatus("paused")
}

func (u *UI) SetProcessing() {
	u.updateStatus("processing")
}

func (u *UI) SetError() {
	u.updateStatus("error")
}

func New(application *app.App, cfg *config.Config, sharer *share.Sharer, log zerolog.Logger, version, commit string) *UI {
	return &UI{
		app:     application,
		cfg:     cfg,
		sharer:  sharer,
		version: version,
		commit:  commit,
		log:     log.With().Str("component", "tray").Logger(),
		status:  "idle",
	}
}

// Run blocks on the tray event loop. onExit runs after Quit.
func (u *UI) Run(ctx context.Context, onExit func()) error {
	systray.Run(func() { u.onReady(ctx) }, func() {
		if onExit != nil {
			onExit()
		}
	})
	return nil
}

func (u *UI) onReady(ctx context.Context) {
	// Use emoji instead of icon - microphone with initial status
	u.updateStatus("idle")
	systray.SetTooltip("Consultation recorder")

	// Build menu
	u.mStart = systray.AddMenuItem("Start Recording", "Record a new consultation")
	u.mPause = systray.AddMenuItem("Pause", "Pause or resume the current recording")
	u.mStop = systray.AddMenuItem("Stop and Analyze", "Stop recording and analyze the consultation")
	u.mPause.Disable()
	u.mStop.Disable()
	systray.AddSeparator()

	u.mDevices = systray.AddMenuItem("Microphone", "Select audio device")
	u.buildDeviceMenu()
	systray.AddSeparator()

	u.mCopy = systray.AddMenuItem("Copy Summary", "Copy the latest summary to the clipboard")
	u.mCopyFull = systray.AddMenuItem("Copy Full Report", "Copy summary, assessment and transcript")
	u.mPaste = systray.AddMenuItem("Paste Summary", "Paste the latest summary into the focused window")
	u.refreshShareItems()
	systray.AddSeparator()

	mRecordings := systray.AddMenuItem("Open Consultations Folder", "Show saved consultations")
	mAbout := systray.AddMenuItem("About", "About Consult Recorder")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	// Event loop
	go u.handleEvents(ctx, mRecordings, mAbout, mQuit)
	go u.tick(ctx)
}

func (u *UI) handleEvents(ctx context.Context, mRecordings, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-u.mStart.ClickedCh:
			u.start()
		case <-u.mPause.ClickedCh:
			u.togglePause()
		case <-u.mStop.ClickedCh:
			u.stop()
		case <-u.mCopy.ClickedCh:
			u.copyResult(false)
		case <-u.mCopyFull.ClickedCh:
			u.copyResult(true)
		case <-u.mPaste.ClickedCh:
			u.pasteSummary(ctx)
		case <-mRecordings.ClickedCh:
			u.openPath(u.cfg.Storage.ConsultationsDir)
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

// tick refreshes the elapsed time in the title once a second.
func (u *UI) tick(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.mu.Lock()
			t := u.titleLocked(time.Now())
			u.mu.Unlock()
			systray.SetTitle(t)
		}
	}
}

func (u *UI) start() {
	if _, err := u.app.StartSession(); err != nil {
		u.log.Error().Err(err).Msg("Failed to start recording")
		return
	}
	u.mStart.Disable()
	u.mPause.SetTitle("Pause")
	u.mPause.Enable()
	u.mStop.Enable()
}

func (u *UI) togglePause() {
	info, ok := u.app.ActiveSession()
	if !ok {
		return
	}
	if info.State == capture.Paused.String() {
		if err := u.app.ResumeSession(info.ID); err != nil {
			u.log.Error().Err(err).Msg("Failed to resume recording")
			return
		}
		u.mPause.SetTitle("Pause")
		return
	}
	if err := u.app.PauseSession(info.ID); err != nil {
		u.log.Error().Err(err).Msg("Failed to pause recording")
		return
	}
	u.mPause.SetTitle("Resume")
}

func (u *UI) stop() {
	info, ok := u.app.ActiveSession()
	if ok {
		if err := u.app.StopSession(info.ID); err != nil {
			u.log.Error().Err(err).Msg("Failed to stop recording")
		}
	}
	u.mStart.Enable()
	u.mPause.SetTitle("Pause")
	u.mPause.Disable()
	u.mStop.Disable()
}

func (u *UI) buildDeviceMenu() {
	// Get devices from app
	devices, err := u.app.ListDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		return
	}

	current := u.app.DeviceID()
	deviceItems := make(map[string]*systray.MenuItem)

	for _, dev := range devices {
		item := u.mDevices.AddSubMenuItem(dev.Name, "")
		if dev.ID == current || (current == "" && dev.Default) {
			item.Check()
		}
		deviceItems[dev.ID] = item
	}

	for _, dev := range devices {
		go func(deviceID, deviceName string, menuItem *systray.MenuItem) {
			for range menuItem.ClickedCh {
				if err := u.app.SetDevice(deviceID); err != nil {
					u.log.Warn().Err(err).Str("device", deviceName).Msg("Cannot change audio device")
					continue
				}
				// Uncheck all other items
				for id, itm := range deviceItems {
					if id != deviceID {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.log.Info().Str("device", deviceName).Msg("Changed audio device")
			}
		}(dev.ID, dev.Name, deviceItems[dev.ID])
	}
}

func (u *UI) refreshShareItems() {
	if u.app.LastResult() == nil {
		u.mCopy.Disable()
		u.mCopyFull.Disable()
		u.mPaste.Disable()
		return
	}
	u.mCopy.Enable()
	u.mCopyFull.Enable()
	u.mPaste.Enable()
}

func (u *UI) copyResult(full bool) {
	res := u.app.LastResult()
	if res == nil {
		return
	}
	text := share.FormatSummary(res)
	if full {
		text = share.Format(res)
	}
	if err := u.sharer.Copy(text); err != nil {
		u.log.Error().Err(err).Msg("Failed to copy result")
		return
	}
	u.log.Info().Bool("full", full).Msg("Copied result to clipboard")
}

func (u *UI) pasteSummary(ctx context.Context) {
	res := u.app.LastResult()
	if res == nil {
		return
	}
	if !permissions.AccessibilityTrusted(true) {
		u.log.Warn().Msg("Accessibility permission required to paste; summary copied instead")
		u.copyResult(false)
		return
	}
	if err := u.sharer.Paste(ctx, share.FormatSummary(res)); err != nil {
		u.log.Error().Err(err).Msg("Failed to paste summary")
	}
}

func (u *UI) openPath(path string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		u.log.Error().Err(err).Str("path", path).Msg("Failed to open folder")
		return
	}
	go cmd.Wait()
}

func (u *UI) showAbout() {
	u.log.Info().
		Str("version", u.version).
		Str("commit", u.commit).
		Msg("Consult Recorder - consultation recording and analysis")
}

// updateStatus sets the tray title with microphone emoji and status indicator
func (u *UI) updateStatus(status string) {
	now := time.Now()

	u.mu.Lock()
	switch {
	case status == "recording" && u.status == "paused":
		u.paused += now.Sub(u.pausedAt)
	case status == "recording":
		u.startedAt = now
		u.paused = 0
	case status == "paused" && u.status == "recording":
		u.pausedAt = now
	}
	u.status = status
	title := u.titleLocked(now)
	u.mu.Unlock()

	systray.SetTitle(title)

	if u.mCopy != nil && (status == "idle" || status == "error") {
		u.refreshShareItems()
		u.mStart.Enable()
		u.mPause.Disable()
		u.mStop.Disable()
	}
}

func (u *UI) titleLocked(now time.Time) string {
	var elapsed time.Duration
	switch u.status {
	case "recording":
		elapsed = now.Sub(u.startedAt) - u.paused
	case "paused":
		elapsed = u.pausedAt.Sub(u.startedAt) - u.paused
	}
	return title(u.status, elapsed)
}

func title(status string, elapsed time.Duration) string {
	t := fmt.Sprintf("🎤 %s", emojiForStatus(status))
	if status == "recording" || status == "paused" {
		t += " " + formatElapsed(elapsed)
	}
	return t
}

// formatElapsed renders m:ss, or h:mm:ss past an hour.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d / time.Second)
	h, m, s := s/3600, (s/60)%60, s%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "recording":
		return "🔴" // Red - recording
	case "paused":
		return "⏸️" // Paused - audio is discarded
	case "processing":
		return "🟡" // Yellow - analyzing consultation
	case "idle":
		return "🟢" // Green - ready/idle
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢" // Green - default to ready
	}
}
