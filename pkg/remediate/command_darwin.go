//go:build darwin
// +build darwin

package remediate

// settingsCommand opens System Settings at Privacy & Security > Accessibility.
func settingsCommand() (string, []string) {
	return "open", []string{"x-apple.systempreferences:com.apple.preference.security?Privacy_Accessibility"}
}
