// Package permissions checks the OS privacy grants the recorder needs.
package permissions

import (
	"errors"
	"fmt"
)

// Status mirrors AVAuthorizationStatus.
type Status int

const (
	NotDetermined Status = iota
	Restricted
	Denied
	Authorized
)

var ErrMicrophoneDenied = errors.New("microphone permission not granted")

func (s Status) String() string {
	switch s {
	case NotDetermined:
		return "not determined"
	case Restricted:
		return "restricted"
	case Denied:
		return "denied"
	case Authorized:
		return "authorized"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// EnsureMicrophone returns nil when capture is allowed. When the user has not
// been asked yet it shows the system prompt and still fails, since the
// answer arrives asynchronously.
func EnsureMicrophone() error {
	return ensure(MicrophoneStatus(), RequestMicrophone)
}

func ensure(status Status, request func()) error {
	switch status {
	case Authorized:
		return nil
	case NotDetermined:
		request()
		return fmt.Errorf("%w: allow access in the system prompt and restart", ErrMicrophoneDenied)
	default:
		return fmt.Errorf("%w (%s): enable it in System Settings → Privacy & Security → Microphone", ErrMicrophoneDenied, status)
	}
}
