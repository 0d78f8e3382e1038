package cli

import (
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

type stopFunc func()

func noop() {}

// startSpinner shows an indeterminate spinner on stderr until stopped.
func startSpinner(enabled bool, description string) stopFunc {
	if !enabled {
		return noop
	}

	bar := progressbar.NewOptions(
		-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(80*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	return animate(bar, 120*time.Millisecond)
}

// startDurationProgress counts the seconds of a timed recording.
func startDurationProgress(enabled bool, description string, duration time.Duration) stopFunc {
	if !enabled || duration <= 0 {
		return noop
	}

	bar := progressbar.NewOptions64(
		max(int64(duration/time.Second), 1),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(20),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	return animate(bar, time.Second)
}

// animate advances bar every tick until the returned func is called. The
// func is safe to call more than once.
func animate(bar *progressbar.ProgressBar, tick time.Duration) stopFunc {
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				_ = bar.Finish()
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopCh)
			<-doneCh
		})
	}
}
