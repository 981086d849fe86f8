//go:build !darwin && !windows
// +build !darwin,!windows

package remediate

// settingsCommand reports that there is no settings surface to open.
func settingsCommand() (string, []string) {
	return "", nil
}
