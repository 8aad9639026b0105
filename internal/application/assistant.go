package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/azzmodious/jarvis/internal/domain"
)

// ErrSessionActive is returned by TriggerPrompt while another capture
// session is in progress. Triggers are rejected, never queued.
var ErrSessionActive = errors.New("a session is already active")

// Settings holds the listening parameters. Zero values fall back to the
// stock configuration defaults.
type Settings struct {
	WakeWord       string
	StopPhrases    []string
	ClientID       string
	CommandTimeout time.Duration
	PhraseTimeout  time.Duration
}

// Assistant drives the capture pipeline: wake-word listening, command
// capture, acknowledgment cues and event dispatch. At most one session is
// active at a time; the flag is guarded by mu and released on every exit
// path out of a session.
type Assistant struct {
	audio  AudioSource
	stt    Transcriber
	cues   CuePlayer
	router *Router
	logger *slog.Logger

	wakeWord       string
	stopPhrases    []string
	clientID       string
	commandTimeout time.Duration
	phraseTimeout  time.Duration

	mu      sync.Mutex
	session *domain.Session
	state   domain.ListeningState

	triggers chan triggerRequest
}

type triggerRequest struct {
	session *domain.Session
	prompt  string
}

func NewAssistant(
	audio AudioSource,
	stt Transcriber,
	cues CuePlayer,
	router *Router,
	settings Settings,
	logger *slog.Logger,
) *Assistant {
	if settings.CommandTimeout <= 0 {
		settings.CommandTimeout = 5 * time.Second
	}
	if settings.PhraseTimeout <= 0 {
		settings.PhraseTimeout = 3 * time.Second
	}
	if settings.ClientID == "" {
		settings.ClientID = "voice_assistant"
	}

	stopPhrases := make([]string, 0, len(settings.StopPhrases))
	for _, p := range settings.StopPhrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			stopPhrases = append(stopPhrases, p)
		}
	}

	return &Assistant{
		audio:          audio,
		stt:            stt,
		cues:           cues,
		router:         router,
		logger:         logger,
		wakeWord:       strings.ToLower(strings.TrimSpace(settings.WakeWord)),
		stopPhrases:    stopPhrases,
		clientID:       settings.ClientID,
		commandTimeout: settings.CommandTimeout,
		phraseTimeout:  settings.PhraseTimeout,
		state:          domain.StateIdle,
		triggers:       make(chan triggerRequest, 1),
	}
}

// Run blocks until ctx is cancelled. The startup cue and startup event fire
// before the first wake-word cycle.
func (a *Assistant) Run(ctx context.Context) error {
	a.logger.Info("starting audio source", "source", a.audio.Name())
	if err := a.audio.Start(ctx); err != nil {
		return fmt.Errorf("starting audio source: %w", err)
	}
	defer a.audio.Stop()

	a.playCue(ctx, domain.CueStartup)
	a.router.Dispatch(ctx, domain.NewStartupEvent(a.clientID))

	a.logger.Info("assistant ready", "wakeWord", a.wakeWord)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-a.triggers:
			a.runSession(ctx, req.session, req.prompt, false)
		default:
			a.listenForWake(ctx)
		}
	}
}

// TriggerPrompt starts a session without wake-word detection, carrying the
// caller's client identifier and an optional pre-supplied prompt. The run
// loop picks the session up within one listening cycle.
func (a *Assistant) TriggerPrompt(ctx context.Context, prompt, clientID string) error {
	s, ok := a.beginSession(clientID)
	if !ok {
		return ErrSessionActive
	}

	select {
	case a.triggers <- triggerRequest{session: s, prompt: prompt}:
		return nil
	case <-ctx.Done():
		a.endSession()
		return ctx.Err()
	}
}

// Active reports whether a capture session is in progress.
func (a *Assistant) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session != nil
}

func (a *Assistant) State() domain.ListeningState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Assistant) listenForWake(ctx context.Context) {
	a.setState(domain.StateWakeWordListening)

	audio, err := a.audio.Capture(ctx, a.phraseTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		a.logger.Error("wake capture failed", "error", err)
		waitOrDone(ctx, time.Second)
		return
	}
	if len(audio) == 0 {
		return
	}

	text, err := a.stt.Transcribe(ctx, audio)
	if err != nil {
		a.handleWakeRecognition(ctx, err)
		return
	}

	a.logger.Debug("heard", "text", text)

	if !a.containsWakeWord(text) {
		return
	}

	s, ok := a.beginSession(a.clientID)
	if !ok {
		// A trigger won the race for the session flag.
		return
	}

	a.logger.Info("wake word detected", "text", text)
	a.runSession(ctx, s, "", true)
}

func (a *Assistant) runSession(ctx context.Context, s *domain.Session, presetPrompt string, fromWake bool) {
	defer a.endSession()

	if fromWake {
		a.setState(domain.StateAcknowledging)
		a.playCue(ctx, domain.CueWakeAck)
	}

	transcript := presetPrompt
	if transcript == "" {
		a.setState(domain.StateCommandCapturing)
		transcript = a.captureCommand(ctx)
	}

	if strings.TrimSpace(transcript) == "" {
		a.logger.Warn("no command captured", "session", s.ID, "client", s.ClientID)
		return
	}

	if a.isStopPhrase(transcript) {
		a.logger.Info("stop phrase detected", "text", transcript)
		a.setState(domain.StateStopAcknowledging)
		a.playCue(ctx, domain.CueStopAck)
		return
	}

	a.setState(domain.StateCommandAcknowledging)
	a.playCue(ctx, domain.CueCommandAck)

	a.setState(domain.StateDispatching)
	a.logger.Info("dispatching command", "session", s.ID, "text", transcript)
	a.router.Dispatch(ctx, domain.NewTranscriptEvent(transcript, s.ClientID))
}

// captureCommand listens until a usable transcript arrives or the command
// timeout elapses. No-speech and unintelligible results retry within the
// window; an unavailable recognition service ends the attempt (the
// transcription client has already retried internally).
func (a *Assistant) captureCommand(ctx context.Context) string {
	cctx, cancel := context.WithTimeout(ctx, a.commandTimeout)
	defer cancel()

	for {
		audio, err := a.audio.Capture(cctx, a.phraseTimeout)
		if err != nil {
			if cctx.Err() == nil {
				a.logger.Error("command capture failed", "error", err)
			}
			return ""
		}

		text, err := a.stt.Transcribe(cctx, audio)
		switch {
		case err == nil && strings.TrimSpace(text) != "":
			return text
		case err == nil:
			// Empty transcript, keep listening.
		case errors.Is(err, ErrNoSpeech), errors.Is(err, ErrUnintelligible):
			a.logger.Debug("retrying command capture", "error", err)
		case errors.Is(err, ErrServiceUnavailable):
			a.logger.Error("recognition service unavailable", "error", err)
			return ""
		default:
			a.logger.Error("transcription failed", "error", err)
			return ""
		}

		if cctx.Err() != nil {
			return ""
		}
	}
}

func (a *Assistant) handleWakeRecognition(ctx context.Context, err error) {
	switch {
	case errors.Is(err, ErrNoSpeech), errors.Is(err, ErrUnintelligible):
		// Routine silence or noise, keep listening.
	case errors.Is(err, ErrServiceUnavailable):
		a.logger.Error("recognition service unavailable", "error", err)
		waitOrDone(ctx, time.Second)
	default:
		a.logger.Error("wake transcription failed", "error", err)
	}
}

func (a *Assistant) beginSession(clientID string) (*domain.Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session != nil {
		return nil, false
	}
	s := domain.NewSession(clientID)
	a.session = s
	return s, true
}

func (a *Assistant) endSession() {
	a.mu.Lock()
	a.session = nil
	a.state = domain.StateIdle
	a.mu.Unlock()
}

func (a *Assistant) setState(state domain.ListeningState) {
	a.mu.Lock()
	a.state = state
	if a.session != nil {
		a.session.State = state
	}
	a.mu.Unlock()
}

func (a *Assistant) playCue(ctx context.Context, cue domain.Cue) {
	if err := a.cues.Play(ctx, cue); err != nil {
		a.logger.Warn("cue playback failed", "cue", cue, "error", err)
	}
}

func (a *Assistant) containsWakeWord(text string) bool {
	return a.wakeWord != "" && strings.Contains(strings.ToLower(text), a.wakeWord)
}

func (a *Assistant) isStopPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range a.stopPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func waitOrDone(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
