//go:build windows
// +build windows

package remediate

// settingsCommand opens the Settings app on the Privacy page.
func settingsCommand() (string, []string) {
	return "explorer.exe", []string{"ms-settings:privacy"}
}
