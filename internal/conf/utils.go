// conf/utils.go various util functions for configuration package
package conf

import (
	"os"
	"path/filepath"
	"runtime"
)

const osWindows = "windows"

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// most specific first: the working directory, then per-user and system paths.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == osWindows {
			paths = append(paths, filepath.Join(homeDir, "AppData", "Roaming", "sensorrec"))
		} else {
			paths = append(paths, filepath.Join(homeDir, ".config", "sensorrec"))
		}
	}

	if runtime.GOOS != osWindows {
		paths = append(paths, "/etc/sensorrec")
	}

	return paths
}
