// Package record captures microphone audio into WAV files by driving the
// recorder tools installed on the host.
package record

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"
)

var (
	ErrInteractiveRequiresTTY = errors.New("interactive recording requires terminal input")
	ErrNoBackendAvailable     = errors.New("no recording backend available")
)

const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
)

type Config struct {
	OutputPath  string
	Duration    time.Duration
	Interactive bool
	SampleRate  int
	Channels    int
	// Input selects a device in the backend's own notation.
	Input string
	// Format pins the ffmpeg input format on Linux (pulse or alsa).
	Format string
	Logger *zap.Logger
}

func (c Config) sampleRate() int {
	if c.SampleRate <= 0 {
		return DefaultSampleRate
	}
	return c.SampleRate
}

func (c Config) channels() int {
	if c.Channels <= 0 {
		return DefaultChannels
	}
	return c.Channels
}

func (c Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

type Backend interface {
	Name() string
	Available() bool
	Record(ctx context.Context, cfg Config) error
	ListDevices(ctx context.Context) (string, error)
}

// DefaultBackends lists the backends for goos in order of preference.
func DefaultBackends(goos string) []Backend {
	switch goos {
	case "linux":
		return []Backend{newPipeWireBackend(), newALSARecorderBackend(), newFFMPEGLinuxBackend()}
	case "darwin":
		return []Backend{newFFMPEGMacOSBackend()}
	default:
		return nil
	}
}

// SelectBackend returns preferred, or the first available backend when
// preferred is empty or "auto".
func SelectBackend(backends []Backend, preferred string) (Backend, error) {
	ordered, err := orderBackends(backends, preferred)
	if err != nil {
		return nil, err
	}
	if isAuto(preferred) {
		for _, backend := range ordered {
			if backend.Available() {
				return backend, nil
			}
		}
		return nil, ErrNoBackendAvailable
	}
	if !ordered[0].Available() {
		return nil, fmt.Errorf("requested backend %q is not available", preferred)
	}
	return ordered[0], nil
}

// Record captures audio with preferred first and falls back to the other
// backends of this OS. It returns the name of the backend that succeeded.
func Record(ctx context.Context, preferred string, cfg Config) (string, error) {
	backends := DefaultBackends(runtime.GOOS)
	if len(backends) == 0 {
		return "", fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
	return recordWithFallback(ctx, backends, preferred, cfg)
}

func recordWithFallback(ctx context.Context, backends []Backend, preferred string, cfg Config) (string, error) {
	ordered, err := orderBackends(backends, preferred)
	if err != nil {
		return "", err
	}

	var errs []error
	for _, backend := range ordered {
		if !backend.Available() {
			errs = append(errs, fmt.Errorf("%s: backend is not available", backend.Name()))
			continue
		}

		err := backend.Record(ctx, cfg)
		if err == nil {
			return backend.Name(), nil
		}
		if cleanupErr := removePartialRecording(cfg.OutputPath); cleanupErr != nil {
			errs = append(errs, fmt.Errorf("%s: cleanup partial recording %q: %w", backend.Name(), cfg.OutputPath, cleanupErr))
		}

		err = fmt.Errorf("%s: %w", backend.Name(), err)
		if isCancellation(err) {
			return "", err
		}
		cfg.logger().Debug("recording backend failed; trying next", zap.String("backend", backend.Name()), zap.Error(err))
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return "", ErrNoBackendAvailable
	}
	return "", fmt.Errorf("record audio with available backends: %w", errors.Join(errs...))
}

// orderBackends moves preferred to the front.
func orderBackends(backends []Backend, preferred string) ([]Backend, error) {
	if len(backends) == 0 {
		return nil, errors.New("no backends configured")
	}
	if isAuto(preferred) {
		return backends, nil
	}

	for i, backend := range backends {
		if backend.Name() != preferred {
			continue
		}
		ordered := make([]Backend, 0, len(backends))
		ordered = append(ordered, backend)
		ordered = append(ordered, backends[:i]...)
		return append(ordered, backends[i+1:]...), nil
	}
	return nil, fmt.Errorf("unknown backend %q", preferred)
}

func isAuto(preferred string) bool {
	return preferred == "" || preferred == "auto"
}

func removePartialRecording(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// WaitForEnter prints message to out and blocks until a line is read from in.
func WaitForEnter(in io.Reader, out io.Writer, message string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return ErrInteractiveRequiresTTY
	}

	if message != "" {
		if _, err := fmt.Fprintln(out, message); err != nil {
			return err
		}
	}

	_, err := bufio.NewReader(in).ReadString('\n')
	return err
}
