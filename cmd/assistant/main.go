package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/azzmodious/jarvis/config"
	"github.com/azzmodious/jarvis/internal/application"
	"github.com/azzmodious/jarvis/internal/domain"
	"github.com/azzmodious/jarvis/internal/infra/audio"
	"github.com/azzmodious/jarvis/internal/infra/httpapi"
	"github.com/azzmodious/jarvis/internal/infra/openai"
	"github.com/azzmodious/jarvis/internal/infra/playback"
	"github.com/azzmodious/jarvis/internal/infra/script"
	"github.com/azzmodious/jarvis/internal/infra/webhook"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	player, err := createPlayer(cfg.Cues, logger)
	if err != nil {
		// No output device means no cues and no playback endpoint; the
		// relay is not worth running half-deaf.
		logger.Error("opening audio output", "error", err)
		os.Exit(1)
	}

	audioSource := createAudioSource(cfg.Audio, logger)
	transcriber := createTranscriber(cfg.OpenAI, logger)

	router := application.NewRouter(logger)
	dispatchers := buildActions(cfg, router, logger)
	for _, d := range dispatchers {
		d.Start(ctx)
	}
	defer func() {
		for _, d := range dispatchers {
			d.Close()
		}
	}()

	assistant := application.NewAssistant(
		audioSource,
		transcriber,
		player,
		router,
		application.Settings{
			WakeWord:       cfg.Assistant.WakeWord,
			StopPhrases:    cfg.Assistant.StopPhrases,
			ClientID:       cfg.Assistant.ClientID,
			CommandTimeout: parseDuration(cfg.Assistant.CommandTimeout, 5*time.Second, logger),
			PhraseTimeout:  parseDuration(cfg.Assistant.PhraseTimeout, 3*time.Second, logger),
		},
		logger,
	)

	server := httpapi.NewServer(
		httpapi.Options{
			Addr:            cfg.Server.Addr,
			AuthToken:       cfg.Server.AuthToken,
			WaitForResponse: cfg.Server.WaitForResponse,
		},
		assistant,
		player,
		router,
		logger,
	)
	if err := server.Start(ctx); err != nil {
		logger.Error("starting trigger server", "error", err)
		os.Exit(1)
	}
	defer server.Stop()

	logger.Info("starting voice command relay",
		"audio_source", cfg.Audio.Source,
		"wake_word", cfg.Assistant.WakeWord,
		"server_addr", cfg.Server.Addr,
	)

	if err := assistant.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("assistant error", "error", err)
		os.Exit(1)
	}
}

func createPlayer(cfg config.CuesConfig, logger *slog.Logger) (*playback.Player, error) {
	return playback.NewPlayer(playback.Options{
		Enabled:       cfg.Enabled,
		Volume:        cfg.Volume,
		ToneFrequency: cfg.Tone.Frequency,
		ToneDuration:  time.Duration(cfg.Tone.DurationMS) * time.Millisecond,
		CueFiles: map[domain.Cue]string{
			domain.CueStartup:    cfg.Files.Startup,
			domain.CueWakeAck:    cfg.Files.WakeAck,
			domain.CueCommandAck: cfg.Files.CommandAck,
			domain.CueStopAck:    cfg.Files.StopAck,
		},
	}, logger)
}

func createAudioSource(cfg config.AudioConfig, logger *slog.Logger) application.AudioSource {
	switch cfg.Source {
	case "file":
		return audio.NewFileSource(cfg.FileDir)
	case "microphone":
		return audio.NewMicrophone(cfg.SampleRate, logger)
	default:
		logger.Warn("unknown audio source, using microphone", "source", cfg.Source)
		return audio.NewMicrophone(cfg.SampleRate, logger)
	}
}

func createTranscriber(cfg config.OpenAIConfig, logger *slog.Logger) application.Transcriber {
	if cfg.APIKey == "" {
		logger.Warn("no openai.api_key configured, transcription disabled")
		return &application.NoopTranscriber{}
	}
	return openai.NewWhisperClient(cfg.APIKey, cfg.Language)
}

// buildActions registers every configured event action with the router
// and returns the webhook dispatchers so main can run their workers.
func buildActions(cfg *config.Config, router *application.Router, logger *slog.Logger) []*webhook.Dispatcher {
	timeout := parseDuration(cfg.Webhook.Timeout, 10*time.Second, logger)

	var dispatchers []*webhook.Dispatcher
	for event, actions := range cfg.Events {
		for _, a := range actions {
			switch a.Type {
			case "webhook":
				d := webhook.NewDispatcher(a.URL, timeout, cfg.Webhook.QueueSize, logger)
				dispatchers = append(dispatchers, d)
				router.Register(event, webhook.NewAction(d))
			case "script":
				router.Register(event, script.NewRunner(a.Path, parseDuration(a.Timeout, 30*time.Second, logger), logger))
			default:
				logger.Warn("unknown action type, skipping", "event", event, "type", a.Type)
			}
		}
	}
	return dispatchers
}

func parseDuration(value string, fallback time.Duration, logger *slog.Logger) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn("invalid duration, using default", "value", value, "default", fallback)
		return fallback
	}
	return d
}
