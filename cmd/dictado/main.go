package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fmueller/dictado/internal/cli"
	"github.com/fmueller/dictado/internal/quota"
	"github.com/spf13/cobra"
)

const (
	exitFailure = 1
	// exitQuota lets scripts tell a used-up allowance from other failures.
	exitQuota = 3
)

// usageErrorPatterns are cobra's argument and flag errors; those get a pointer
// to --help.
var usageErrorPatterns = []string{
	"unknown command",
	"unknown flag",
	"unknown shorthand flag",
	"accepts ",
	"requires at least",
	"requires at most",
	"requires between",
	"required flag",
	"missing required",
}

func main() {
	cmd := cli.NewRootCmd()
	err := cmd.Execute()
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, err)
	if isUsageError(err) {
		fmt.Fprintf(os.Stderr, "Run '%s --help' for usage.\n", helpHintTarget(cmd, os.Args[1:]))
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if errors.Is(err, quota.ErrQuotaExceeded) {
		return exitQuota
	}
	return exitFailure
}

func isUsageError(err error) bool {
	if err == nil {
		return false
	}

	message := strings.ToLower(strings.TrimSpace(err.Error()))
	for _, pattern := range usageErrorPatterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return false
}

// helpHintTarget names the deepest command args resolve to.
func helpHintTarget(root *cobra.Command, args []string) string {
	if root == nil {
		return "dictado"
	}

	target := root.CommandPath()
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return target
	}

	if found, _, err := root.Find(args); err == nil && found != nil {
		return found.CommandPath()
	}
	return target
}
