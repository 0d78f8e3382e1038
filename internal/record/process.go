package record

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// stopGrace is how long a recorder may take to finalize its file after the
// interrupt before it is killed.
const stopGrace = 500 * time.Millisecond

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// runCapture runs cmd in the mode cfg asks for: until Enter, for a fixed
// duration, or until the tool exits on its own.
func runCapture(ctx context.Context, cmd *exec.Cmd, cfg Config) error {
	switch {
	case cfg.Interactive:
		return runInteractiveCommand(ctx, cmd, cfg.Logger)
	case cfg.Duration > 0:
		return runTimedCommand(ctx, cmd, cfg.Duration, cfg.Logger)
	default:
		return cmd.Run()
	}
}

func runInteractiveCommand(ctx context.Context, cmd *exec.Cmd, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := cmd.Start(); err != nil {
		return err
	}
	done := waitAsync(cmd)

	if err := WaitForEnter(os.Stdin, os.Stderr, "Recording... press Enter to stop."); err != nil {
		stop(cmd, done)
		return err
	}

	if err := stoppedCleanly(stop(cmd, done), logger); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// runTimedCommand interrupts cmd once duration has passed. Cancelling ctx
// stops the recording early and returns the context error.
func runTimedCommand(ctx context.Context, cmd *exec.Cmd, duration time.Duration, logger *zap.Logger) error {
	if duration <= 0 {
		return cmd.Run()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := cmd.Start(); err != nil {
		return err
	}
	done := waitAsync(cmd)

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return stoppedCleanly(stop(cmd, done), logger)
	case <-ctx.Done():
		stop(cmd, done)
		return ctx.Err()
	}
}

func waitAsync(cmd *exec.Cmd) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()
	return done
}

// stop interrupts the process and kills it if it has not exited within
// stopGrace. The returned error is nil when the interrupt was delivered,
// otherwise it is the process exit error.
func stop(cmd *exec.Cmd, done <-chan error) error {
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		return <-done
	}

	select {
	case <-done:
		return nil
	case <-time.After(stopGrace):
		_ = cmd.Process.Kill()
		<-done
		return nil
	}
}

// stoppedCleanly treats an exit caused by a stop signal as success.
func stoppedCleanly(err error, logger *zap.Logger) error {
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			logger.Debug("recording process stopped by signal", zap.String("signal", status.Signal().String()))
			return nil
		}
	}
	return err
}

func commandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func commandOutput(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		if trimmed != "" {
			return "", fmt.Errorf("%s %s failed: %w (%s)", name, strings.Join(args, " "), err, trimmed)
		}
		return "", fmt.Errorf("%s %s failed: %w", name, strings.Join(args, " "), err)
	}
	return trimmed, nil
}
