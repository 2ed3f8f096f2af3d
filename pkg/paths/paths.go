// Package paths locates batchq's per-user files.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// LocalConfigFile is looked up in the working directory first.
const LocalConfigFile = "batchq.yaml"

// ConfigDir returns the config directory for batchq.
// Order: XDG_CONFIG_HOME/batchq, platform-specific fallback.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "batchq")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("AppData"); appData != "" {
			return filepath.Join(appData, "batchq")
		}
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "batchq")
}

// ResolveConfigFile returns explicit when set. Otherwise it returns the first
// existing file of ./batchq.yaml and ConfigDir()/config.yaml, or "" when
// neither exists.
func ResolveConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, candidate := range []string{
		LocalConfigFile,
		filepath.Join(ConfigDir(), "config.yaml"),
	} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}
