//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

// Microphone captures silence-delimited utterances from the default
// input device via portaudio.
type Microphone struct {
	sampleRate int
	logger     *slog.Logger

	stream *portaudio.Stream
	frame  []int16
}

func NewMicrophone(sampleRate int, logger *slog.Logger) *Microphone {
	return &Microphone{
		sampleRate: sampleRate,
		logger:     logger,
		frame:      make([]int16, framesPerBuffer),
	}
}

func (m *Microphone) Name() string {
	return "microphone"
}

func (m *Microphone) Start(_ context.Context) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), framesPerBuffer, m.frame)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("starting input stream: %w", err)
	}

	m.stream = stream
	m.logger.Info("microphone started", "sample_rate", m.sampleRate)
	return nil
}

func (m *Microphone) Stop() error {
	if m.stream != nil {
		m.stream.Stop()
		m.stream.Close()
		m.stream = nil
	}
	portaudio.Terminate()
	return nil
}

// Capture waits for speech to begin, then records until one second of
// trailing silence. The window caps both the wait and the recording
// length; a quiet window returns nil bytes so the caller can poll for
// other work between listens.
func (m *Microphone) Capture(ctx context.Context, window time.Duration) ([]byte, error) {
	return captureUtterance(ctx, m.readFrame, m.sampleRate, window)
}

func (m *Microphone) readFrame() ([]int16, error) {
	if err := m.stream.Read(); err != nil {
		return nil, fmt.Errorf("reading microphone frame: %w", err)
	}
	// The stream refills m.frame on the next Read, so keep a copy.
	frame := make([]int16, len(m.frame))
	copy(frame, m.frame)
	return frame, nil
}
