package application

import (
	"context"

	"github.com/azzmodious/jarvis/internal/domain"
)

// CuePlayer renders a named acknowledgment sound; Play returns once playback
// completes. Implementations degrade rather than fail (tone or silence when
// the configured sound cannot be played).
type CuePlayer interface {
	Play(ctx context.Context, cue domain.Cue) error
}

// NoopCuePlayer is used when cues are disabled.
type NoopCuePlayer struct{}

func (n *NoopCuePlayer) Play(context.Context, domain.Cue) error { return nil }
