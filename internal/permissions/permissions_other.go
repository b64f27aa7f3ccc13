//go:build !darwin

package permissions

// MicrophoneStatus always reports Authorized; other platforms gate access
// at the device level.
func MicrophoneStatus() Status { return Authorized }

func RequestMicrophone() {}

func AccessibilityTrusted(prompt bool) bool { return true }
