//go:build !portaudio
// +build !portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Microphone stub when portaudio is not compiled in.
type Microphone struct {
	logger *slog.Logger
}

func NewMicrophone(sampleRate int, logger *slog.Logger) *Microphone {
	return &Microphone{logger: logger}
}

func (m *Microphone) Name() string {
	return "microphone"
}

func (m *Microphone) Start(_ context.Context) error {
	return fmt.Errorf("microphone input not available: rebuild with -tags portaudio")
}

func (m *Microphone) Stop() error {
	return nil
}

func (m *Microphone) Capture(_ context.Context, _ time.Duration) ([]byte, error) {
	return nil, fmt.Errorf("microphone input not available")
}
