package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appDirName = "dictado"

// Paths are the per-user locations the CLI reads and writes.
type Paths struct {
	DataDir      string
	RecordingDir string
	Settings     string
	State        string
	History      string
}

func PathsFor(dataDir string) Paths {
	return Paths{
		DataDir:      dataDir,
		RecordingDir: filepath.Join(dataDir, "recordings"),
		Settings:     filepath.Join(dataDir, "settings.yaml"),
		State:        filepath.Join(dataDir, "state.json"),
		History:      filepath.Join(dataDir, "history.json"),
	}
}

func DefaultDataDirFor(goos, homeDir, xdgDataHome string) (string, error) {
	if homeDir == "" {
		return "", errors.New("home directory is empty")
	}

	switch goos {
	case "linux":
		if xdgDataHome != "" {
			return filepath.Join(xdgDataHome, appDirName), nil
		}
		return filepath.Join(homeDir, ".local", "share", appDirName), nil
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", appDirName), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
}

// ResolvePaths returns the CLI paths rooted at override, or at the platform
// data directory when override is empty.
func ResolvePaths(override string) (Paths, error) {
	if override != "" {
		return PathsFor(filepath.Clean(override)), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve user home: %w", err)
	}

	dataDir, err := DefaultDataDirFor(runtime.GOOS, homeDir, os.Getenv("XDG_DATA_HOME"))
	if err != nil {
		return Paths{}, err
	}
	return PathsFor(dataDir), nil
}
