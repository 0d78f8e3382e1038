// Package clipboard hands finished transcripts to the desktop clipboard
// through the platform's copy tool.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

var ErrUnavailable = errors.New("no clipboard command available")

const copyTimeout = 4 * time.Second

type commandSpec struct {
	name string
	args []string
	// detached tools keep running to serve the selection, so they are
	// started and released instead of waited for.
	detached bool
}

// candidates lists the copy tools for goos in order of preference.
func candidates(goos string) []commandSpec {
	if goos == "darwin" {
		return []commandSpec{{name: "pbcopy"}}
	}
	return []commandSpec{
		{name: "wl-copy"},
		{name: "xclip", args: []string{"-selection", "clipboard", "-in", "-silent"}, detached: true},
		{name: "xsel", args: []string{"--clipboard", "--input"}},
	}
}

func detectCommand(goos string, lookPath func(string) (string, error)) (commandSpec, error) {
	for _, spec := range candidates(goos) {
		if _, err := lookPath(spec.name); err == nil {
			return spec, nil
		}
	}
	return commandSpec{}, ErrUnavailable
}

// CopyText places value on the clipboard. ErrUnavailable means no copy tool
// is installed.
func CopyText(ctx context.Context, value string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	spec, err := detectCommand(runtime.GOOS, exec.LookPath)
	if err != nil {
		return err
	}
	if spec.detached {
		return copyDetached(spec, value)
	}

	copyCtx, cancel := context.WithTimeout(ctx, copyTimeout)
	defer cancel()

	cmd := exec.CommandContext(copyCtx, spec.name, spec.args...)
	cmd.Stdin = strings.NewReader(value)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Run(); err != nil {
		if errors.Is(copyCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("copy to clipboard timed out: %w", copyCtx.Err())
		}
		return fmt.Errorf("copy to clipboard with %s: %w", spec.name, err)
	}
	return nil
}

func copyDetached(spec commandSpec, value string) error {
	cmd := exec.Command(spec.name, spec.args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open clipboard stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start %s: %w", spec.name, err)
	}

	_, writeErr := io.WriteString(stdin, value)
	closeErr := stdin.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("write clipboard data: %w", err)
	}

	return cmd.Process.Release()
}
