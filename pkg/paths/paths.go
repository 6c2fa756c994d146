// Package paths locates the files agent-webclient keeps in the user's home.
package paths

import (
	"os"
	"path/filepath"
)

const appName = "agent-webclient"

// ConfigDir returns ~/.config/agent-webclient, or a directory under the
// system temp dir when the home directory is unknown.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "."+appName+"-config")
	}
	return filepath.Join(home, ".config", appName)
}

// DataDir returns ~/.agent-webclient, which holds logs and the prefs database.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "."+appName)
	}
	return filepath.Join(home, "."+appName)
}

func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

func DebugLogFile() string {
	return filepath.Join(DataDir(), appName+".debug.log")
}

func PrefsDB() string {
	return filepath.Join(DataDir(), "prefs.db")
}
