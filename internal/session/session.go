// Package session drives one record-then-transcribe cycle per identity:
// audio checks, the quota gate, dispatch, history and usage accounting.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/fmueller/dictado/internal/dispatch"
	"github.com/fmueller/dictado/internal/history"
	"github.com/fmueller/dictado/internal/provider"
	"github.com/fmueller/dictado/internal/quota"
	"go.uber.org/zap"
)

const (
	// MinAudioBytes rejects captures too small to hold speech.
	MinAudioBytes = 1000
	// WordsPerMinute drives the duration estimate when the provider reports
	// none.
	WordsPerMinute = 150
	// MinEstimatedMinutes is the floor of the duration estimate.
	MinEstimatedMinutes = 0.1
)

var (
	ErrNoAudio       = errors.New("no audio captured")
	ErrAudioTooShort = errors.New("recording too short")
	ErrSessionBusy   = errors.New("a session is already active for this identity")
	ErrNotRecording  = errors.New("no recording in progress for this identity")
)

type State int

const (
	Idle State = iota
	Recording
	Transcribing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Transcribing:
		return "transcribing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Dispatcher interface {
	Dispatch(ctx context.Context, audio []byte, cfg dispatch.Config, opts provider.Options) (provider.Result, error)
}

type Quota interface {
	CheckQuota(ctx context.Context, identity string) (quota.Status, error)
	RecordUsage(ctx context.Context, identity string, minutes float64) error
}

type History interface {
	Append(ctx context.Context, identity string, entry history.Entry) error
}

// Deliverer hands a finished transcript to the user (clipboard, notification).
// Its failure never undoes the session.
type Deliverer func(ctx context.Context, text string) error

type Options struct {
	Dispatcher Dispatcher
	Quota      Quota
	// History is optional; without it no entries are kept.
	History       History
	Deliverers    []Deliverer
	Logger        *zap.Logger
	Now           func() time.Time
	MinAudioBytes int
}

// Request describes one transcription for an identity.
type Request struct {
	Identity string
	Audio    []byte
	Config   dispatch.Config
	Options  provider.Options
	// Source labels the history entry, e.g. the provider name.
	Source string
}

type Outcome struct {
	Text            string
	DurationMinutes float64
	// Estimated is set when DurationMinutes was derived from the word count.
	Estimated bool
	Entry     history.Entry
	// Status is the quota view after usage was recorded, or the gate's view
	// when the session was rejected by the quota.
	Status quota.Status
}

type Orchestrator struct {
	dispatcher Dispatcher
	quota      Quota
	history    History
	deliverers []Deliverer
	logger     *zap.Logger
	now        func() time.Time
	minAudio   int

	mu       sync.Mutex
	sessions map[string]*tracked
}

type tracked struct {
	state State
	// completing is set once Complete has claimed a Recording session.
	completing bool
}

func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	minAudio := opts.MinAudioBytes
	if minAudio <= 0 {
		minAudio = MinAudioBytes
	}
	return &Orchestrator{
		dispatcher: opts.Dispatcher,
		quota:      opts.Quota,
		history:    opts.History,
		deliverers: opts.Deliverers,
		logger:     logger,
		now:        now,
		minAudio:   minAudio,
		sessions:   map[string]*tracked{},
	}
}

// State reports the current session state of identity.
func (o *Orchestrator) State(identity string) State {
	o.mu.Lock()
	defer o.mu.Unlock()

	if t, ok := o.sessions[identity]; ok {
		return t.state
	}
	return Idle
}

// Begin moves identity from Idle to Recording.
func (o *Orchestrator) Begin(identity string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if t, ok := o.sessions[identity]; ok {
		return fmt.Errorf("%w (%s)", ErrSessionBusy, t.state)
	}
	o.sessions[identity] = &tracked{state: Recording}
	return nil
}

// Cancel returns a Recording session to Idle without transcribing.
func (o *Orchestrator) Cancel(identity string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if t, ok := o.sessions[identity]; ok && t.state == Recording && !t.completing {
		delete(o.sessions, identity)
	}
}

// Complete finishes the Recording session of req.Identity. The session is
// Idle again when Complete returns, whatever the result.
func (o *Orchestrator) Complete(ctx context.Context, req Request) (Outcome, error) {
	if err := o.claim(req.Identity); err != nil {
		return Outcome{}, err
	}
	defer o.release(req.Identity)

	return o.complete(ctx, req)
}

// Transcribe runs a whole session for audio that is already captured.
func (o *Orchestrator) Transcribe(ctx context.Context, req Request) (Outcome, error) {
	if err := o.Begin(req.Identity); err != nil {
		return Outcome{}, err
	}
	return o.Complete(ctx, req)
}

// Run begins a session, captures audio and completes it. A capture error
// cancels the session.
func (o *Orchestrator) Run(ctx context.Context, req Request, capture func(ctx context.Context) ([]byte, error)) (Outcome, error) {
	if err := o.Begin(req.Identity); err != nil {
		return Outcome{}, err
	}

	audio, err := capture(ctx)
	if err != nil {
		o.Cancel(req.Identity)
		return Outcome{}, err
	}
	req.Audio = audio
	return o.Complete(ctx, req)
}

func (o *Orchestrator) complete(ctx context.Context, req Request) (Outcome, error) {
	if err := o.checkAudio(req.Audio); err != nil {
		return Outcome{}, err
	}

	status, err := o.quota.CheckQuota(ctx, req.Identity)
	if err != nil {
		return Outcome{}, err
	}
	if err := quota.Exceeded(status); err != nil {
		return Outcome{Status: status}, err
	}

	o.setState(req.Identity, Transcribing)
	log := o.logger.With(zap.String("identity", req.Identity), zap.String("provider", string(req.Config.Provider)))
	log.Debug("dispatching transcription", zap.Int("audio_bytes", len(req.Audio)))

	started := o.now()
	result, err := o.dispatcher.Dispatch(ctx, req.Audio, req.Config, req.Options)
	if err != nil {
		log.Debug("transcription failed", zap.Error(err))
		return Outcome{Status: status}, err
	}

	minutes, estimated := result.DurationMinutes, false
	if minutes <= 0 {
		minutes, estimated = EstimateMinutes(result.Text), true
	}

	entry := history.NewEntry(result.Text, o.now(), minutes, req.Source)
	if err := o.quota.RecordUsage(ctx, req.Identity, minutes); err != nil {
		return Outcome{Text: result.Text, DurationMinutes: minutes, Estimated: estimated, Entry: entry, Status: status}, err
	}

	// History only lists transcriptions whose usage was recorded.
	if o.history != nil {
		if err := o.history.Append(ctx, req.Identity, entry); err != nil {
			log.Warn("failed to save history entry", zap.Error(err))
		}
	}

	if refreshed, err := o.quota.CheckQuota(ctx, req.Identity); err != nil {
		log.Warn("failed to refresh quota status", zap.Error(err))
	} else {
		status = refreshed
	}

	log.Info(
		"transcription completed",
		zap.Float64("minutes", minutes),
		zap.Bool("estimated", estimated),
		zap.Duration("elapsed", o.now().Sub(started)),
	)

	o.deliver(ctx, result.Text)

	return Outcome{
		Text:            result.Text,
		DurationMinutes: minutes,
		Estimated:       estimated,
		Entry:           entry,
		Status:          status,
	}, nil
}

func (o *Orchestrator) checkAudio(audio []byte) error {
	if len(audio) == 0 {
		return ErrNoAudio
	}
	if len(audio) < o.minAudio {
		return fmt.Errorf("%w: %d bytes captured, at least %d required", ErrAudioTooShort, len(audio), o.minAudio)
	}
	return nil
}

func (o *Orchestrator) deliver(ctx context.Context, text string) {
	for _, deliver := range o.deliverers {
		if err := deliver(ctx, text); err != nil {
			o.logger.Warn("failed to deliver transcript", zap.Error(err))
		}
	}
}

func (o *Orchestrator) claim(identity string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	t, ok := o.sessions[identity]
	if !ok {
		return ErrNotRecording
	}
	if t.state != Recording || t.completing {
		return fmt.Errorf("%w (%s)", ErrSessionBusy, t.state)
	}
	t.completing = true
	return nil
}

func (o *Orchestrator) setState(identity string, state State) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if t, ok := o.sessions[identity]; ok {
		t.state = state
	}
}

func (o *Orchestrator) release(identity string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.sessions, identity)
}

// EstimateMinutes derives a duration from the transcript length at
// WordsPerMinute, never less than MinEstimatedMinutes.
func EstimateMinutes(text string) float64 {
	words := len(strings.Fields(text))
	return math.Max(MinEstimatedMinutes, float64(words)/WordsPerMinute)
}
