package application

import (
	"context"
	"time"
)

// AudioSource yields one utterance per Capture call: a silence-delimited
// stretch of speech encoded as WAV bytes, bounded by the window duration.
type AudioSource interface {
	Start(ctx context.Context) error
	Stop() error
	Capture(ctx context.Context, window time.Duration) ([]byte, error)
	Name() string
}
