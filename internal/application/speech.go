package application

import (
	"context"
	"errors"
	"fmt"
)

// Typed recognition failures. All three are non-fatal to the capture loop;
// the distinction drives retry and logging decisions.
var (
	ErrNoSpeech           = errors.New("no speech detected")
	ErrUnintelligible     = errors.New("speech unintelligible")
	ErrServiceUnavailable = errors.New("recognition service unavailable")
)

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// NoopTranscriber stands in when no recognition service is configured.
type NoopTranscriber struct{}

func (n *NoopTranscriber) Transcribe(context.Context, []byte) (string, error) {
	return "", fmt.Errorf("%w: set openai.api_key to enable transcription", ErrServiceUnavailable)
}
