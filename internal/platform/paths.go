package platform

import (
	"os"
	"path/filepath"
)

// HomeDir returns the trevorproxy state directory under the user's home
// directory (~/.trevorproxy), creating it if necessary.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dir := filepath.Join(home, ".trevorproxy")
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

// LogFile is the path of the persistent log file, written alongside stderr.
func LogFile() string {
	return filepath.Join(HomeDir(), "trevorproxy.log")
}

// ConfigFile is the path of the optional defaults file read at startup to
// seed listen address/port/verbosity across invocations.
func ConfigFile() string {
	return filepath.Join(HomeDir(), "config.yaml")
}

const (
	DefaultListenAddress = "127.0.0.1"
	DefaultPort          = 1080

	// DefaultBasePort is the first local port used for SSH dynamic
	// forwards in ssh mode.
	DefaultBasePort = 32482
)
