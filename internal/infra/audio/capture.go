package audio

import (
	"context"
	"time"
)

// silenceThreshold is the absolute sample amplitude below which a frame
// counts as silence.
const silenceThreshold = 500

// captureUtterance drives one silence-delimited listen over frames pulled
// from read. The window bounds both phases by sample count: waiting longer
// than a window's worth of quiet frames for speech returns nil bytes, and
// a recording is cut off once it holds a window's worth of samples.
// Between those bounds, one second of trailing silence ends the utterance.
func captureUtterance(ctx context.Context, read func() ([]int16, error), sampleRate int, window time.Duration) ([]byte, error) {
	windowSamples := int(float64(sampleRate) * window.Seconds())
	maxTrailing := sampleRate

	var (
		samples  []int16
		voiced   bool
		idle     int
		trailing int
	)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		frame, err := read()
		if err != nil {
			return nil, err
		}

		loud := hasVoice(frame, silenceThreshold)

		if !voiced {
			if !loud {
				idle += len(frame)
				if idle >= windowSamples {
					return nil, nil
				}
				continue
			}
			voiced = true
			samples = make([]int16, 0, windowSamples)
		}

		samples = append(samples, frame...)
		if loud {
			trailing = 0
		} else {
			trailing += len(frame)
		}

		if trailing >= maxTrailing || len(samples) >= windowSamples {
			break
		}
	}

	return EncodeWAV(samples, sampleRate), nil
}
