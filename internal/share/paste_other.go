//go:build !darwin

package share

// TODO: send Ctrl+V through XTest on linux and SendInput on windows.
func sendPasteShortcut() error {
	return ErrPasteUnsupported
}
