package record

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// commandBackend records by running one external tool. Some tools are tried
// with several argument sets, e.g. ffmpeg with pulse and then alsa input.
type commandBackend struct {
	name     string
	binary   string
	attempts func(cfg Config) []attempt
	list     func(ctx context.Context) (string, error)
}

type attempt struct {
	label string
	args  []string
}

func (b *commandBackend) Name() string {
	return b.name
}

func (b *commandBackend) Available() bool {
	return commandAvailable(b.binary)
}

func (b *commandBackend) ListDevices(ctx context.Context) (string, error) {
	return b.list(ctx)
}

func (b *commandBackend) Record(ctx context.Context, cfg Config) error {
	if cfg.OutputPath == "" {
		return errors.New("output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(filepath.Clean(cfg.OutputPath)), 0o755); err != nil {
		return err
	}

	attempts := b.attempts(cfg)
	var errs []error
	for _, candidate := range attempts {
		err := runCapture(ctx, b.command(ctx, cfg, candidate.args), cfg)
		if err == nil {
			return nil
		}
		if isCancellation(err) || len(attempts) == 1 {
			return err
		}
		errs = append(errs, fmt.Errorf("%s (%s): %w", b.binary, candidate.label, err))
	}
	return errors.Join(errs...)
}

// command binds the process to ctx except in timed mode, where
// runTimedCommand interrupts it so the tool can finalize the WAV header.
func (b *commandBackend) command(ctx context.Context, cfg Config, args []string) *exec.Cmd {
	var cmd *exec.Cmd
	if !cfg.Interactive && cfg.Duration > 0 {
		cmd = exec.Command(b.binary, args...)
	} else {
		cmd = exec.CommandContext(ctx, b.binary, args...)
	}
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	return cmd
}

func newPipeWireBackend() Backend {
	return &commandBackend{
		name:   "pw-record",
		binary: "pw-record",
		attempts: func(cfg Config) []attempt {
			args := []string{"--rate", strconv.Itoa(cfg.sampleRate()), "--channels", strconv.Itoa(cfg.channels()), "--format", "s16"}
			if cfg.Input != "" {
				args = append(args, "--target", cfg.Input)
			}
			return []attempt{{label: "pipewire", args: append(args, cfg.OutputPath)}}
		},
		list: func(ctx context.Context) (string, error) {
			if commandAvailable("pw-cli") {
				return commandOutput(ctx, "pw-cli", "ls", "Node")
			}
			if out, err := commandOutput(ctx, "pw-record", "--list-targets"); err == nil {
				return out, nil
			}
			if commandAvailable("pactl") {
				return commandOutput(ctx, "pactl", "list", "short", "sources")
			}
			return "", errors.New("no pipewire device listing command available")
		},
	}
}

func newALSARecorderBackend() Backend {
	return &commandBackend{
		name:   "arecord",
		binary: "arecord",
		attempts: func(cfg Config) []attempt {
			var args []string
			if cfg.Duration > 0 {
				args = append(args, "-d", strconv.Itoa(wholeSeconds(cfg.Duration)))
			}
			args = append(args, "-f", "S16_LE", "-r", strconv.Itoa(cfg.sampleRate()), "-c", strconv.Itoa(cfg.channels()))
			if cfg.Input != "" {
				args = append(args, "-D", cfg.Input)
			}
			return []attempt{{label: "alsa", args: append(args, cfg.OutputPath)}}
		},
		list: func(ctx context.Context) (string, error) {
			return commandOutput(ctx, "arecord", "-L")
		},
	}
}

func newFFMPEGLinuxBackend() Backend {
	return &commandBackend{
		name:   "ffmpeg",
		binary: "ffmpeg",
		attempts: func(cfg Config) []attempt {
			if cfg.Format != "" {
				input := cfg.Input
				if input == "" {
					input = "default"
				}
				return []attempt{ffmpegAttempt(cfg, cfg.Format, input)}
			}
			return []attempt{ffmpegAttempt(cfg, "pulse", "default"), ffmpegAttempt(cfg, "alsa", "default")}
		},
		list: listLinuxSources,
	}
}

func newFFMPEGMacOSBackend() Backend {
	return &commandBackend{
		name:   "ffmpeg",
		binary: "ffmpeg",
		attempts: func(cfg Config) []attempt {
			input := cfg.Input
			if input == "" {
				input = ":0"
			}
			return []attempt{ffmpegAttempt(cfg, "avfoundation", input)}
		},
		list: listAVFoundationDevices,
	}
}

func ffmpegAttempt(cfg Config, format, input string) attempt {
	args := []string{"-nostdin", "-hide_banner", "-loglevel", "error", "-y", "-f", format, "-i", input}
	if cfg.Duration > 0 {
		args = append(args, "-t", strconv.Itoa(wholeSeconds(cfg.Duration)))
	}
	args = append(args,
		"-ac", strconv.Itoa(cfg.channels()),
		"-ar", strconv.Itoa(cfg.sampleRate()),
		"-c:a", "pcm_s16le",
		cfg.OutputPath,
	)
	return attempt{label: format + "/" + input, args: args}
}

func listLinuxSources(ctx context.Context) (string, error) {
	var sections []string
	if commandAvailable("pactl") {
		if out, err := commandOutput(ctx, "pactl", "list", "short", "sources"); err == nil {
			sections = append(sections, "PulseAudio/PipeWire sources:\n"+out)
		} else {
			sections = append(sections, "PulseAudio/PipeWire sources: "+err.Error())
		}
	}
	if commandAvailable("arecord") {
		if out, err := commandOutput(ctx, "arecord", "-L"); err == nil {
			sections = append(sections, "ALSA devices:\n"+out)
		} else {
			sections = append(sections, "ALSA devices: "+err.Error())
		}
	}
	if len(sections) == 0 {
		return "", errors.New("no device listing command available")
	}
	return strings.Join(sections, "\n\n"), nil
}

// listAVFoundationDevices reads the device list ffmpeg prints before it
// exits with an error for the empty input.
func listAVFoundationDevices(ctx context.Context) (string, error) {
	out, _ := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", "").CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return "", errors.New("ffmpeg returned no device output")
	}
	return trimmed, nil
}

// wholeSeconds rounds d up so short recordings are not cut to zero.
func wholeSeconds(d time.Duration) int {
	seconds := int(d / time.Second)
	if d%time.Second != 0 {
		seconds++
	}
	return seconds
}
