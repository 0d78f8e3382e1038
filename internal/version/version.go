// Package version reports the build version of the dictado binary.
package version

import (
	"os/exec"
	"strings"
)

var (
	Version = "1.0.0"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info describes the running build.
type Info struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	Date    string `json:"date" yaml:"date"`
}

// Resolve returns the full version string. Development builds, whose commit
// was not stamped at link time, get a git-derived suffix when run from a
// checkout whose HEAD is not on a release tag.
func Resolve() string {
	if Commit != "unknown" {
		return releaseVersion()
	}
	return resolveVersion(Version, runGit)
}

// Release returns the version without any git suffix. The server reports
// it in its health document.
func Release() string {
	return releaseVersion()
}

// Current returns the build information of this binary.
func Current() Info {
	return Info{Version: Resolve(), Commit: Commit, Date: Date}
}

func releaseVersion() string {
	if Version == "" {
		return "0.0.0"
	}
	return Version
}

func resolveVersion(base string, git func(...string) (string, error)) string {
	if base == "" {
		base = "0.0.0"
	}

	suffix := computeGitSuffix(base, git)
	if suffix == "" {
		return base
	}
	return base + "-" + suffix
}

func computeGitSuffix(base string, git func(...string) (string, error)) string {
	if _, err := git("rev-parse", "--git-dir"); err != nil {
		return ""
	}

	if _, err := git("describe", "--tags", "--exact-match"); err == nil {
		return ""
	}

	desc, err := git("describe", "--tags", "--dirty", "--always")
	if err != nil {
		return ""
	}

	prefix := "v" + base + "-"
	if strings.HasPrefix(desc, prefix) {
		return strings.TrimPrefix(desc, prefix)
	}

	return desc
}

func runGit(args ...string) (string, error) {
	out, err := exec.Command("git", args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
