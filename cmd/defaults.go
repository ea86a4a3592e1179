package cmd

import (
	"path/filepath"
	"runtime"

	"github.com/zkiotchain/zkiot/io/file"
)

// DefaultDataDir is the default data directory to use for the databases and other
// persistence requirements.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := file.HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Zkiot")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Local", "Zkiot")
		} else {
			return filepath.Join(home, ".zkiot")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}
