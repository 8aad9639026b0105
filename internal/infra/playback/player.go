// Package playback renders acknowledgment cues and received audio clips
// on the host's output device.
package playback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/generators"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/spf13/afero"

	"github.com/azzmodious/jarvis/internal/domain"
)

// Everything is resampled to one mixer rate so the device is initialized
// exactly once.
const playbackRate beep.SampleRate = 44100

const resampleQuality = 4

// OutputDevice is the slice of the speaker package the player needs,
// split out so tests can run without an audio device.
type OutputDevice interface {
	Init(sampleRate beep.SampleRate, bufferSize int) error
	Play(streamers ...beep.Streamer)
	Clear()
}

type speakerDevice struct{}

func (speakerDevice) Init(sr beep.SampleRate, bufferSize int) error { return speaker.Init(sr, bufferSize) }
func (speakerDevice) Play(streamers ...beep.Streamer)               { speaker.Play(streamers...) }
func (speakerDevice) Clear()                                        { speaker.Clear() }

// Options configures cue playback. CueFiles maps each cue to an audio
// file; cues without a file fall back to a generated tone.
type Options struct {
	Enabled       bool
	Volume        float64
	ToneFrequency int
	ToneDuration  time.Duration
	CueFiles      map[domain.Cue]string
}

// Player plays one clip at a time. Play blocks until the cue has fully
// sounded so state transitions stay audible in order. Cues are resolved
// once at construction into decoded buffers and never touch the
// filesystem again.
type Player struct {
	device OutputDevice
	fs     afero.Fs
	opts   Options
	logger *slog.Logger
	cues   map[domain.Cue]*beep.Buffer

	mu sync.Mutex

	stopMu sync.Mutex
	stop   chan struct{}
}

// NewPlayer opens the default output device. An error here means the host
// has no usable audio output.
func NewPlayer(opts Options, logger *slog.Logger) (*Player, error) {
	return NewPlayerWithDevice(speakerDevice{}, afero.NewOsFs(), opts, logger)
}

func NewPlayerWithDevice(device OutputDevice, fs afero.Fs, opts Options, logger *slog.Logger) (*Player, error) {
	if opts.ToneFrequency <= 0 {
		opts.ToneFrequency = 800
	}
	if opts.ToneDuration <= 0 {
		opts.ToneDuration = 200 * time.Millisecond
	}

	if err := device.Init(playbackRate, playbackRate.N(time.Second/10)); err != nil {
		return nil, fmt.Errorf("opening output device: %w", err)
	}

	p := &Player{
		device: device,
		fs:     fs,
		opts:   opts,
		logger: logger,
	}
	p.cues = p.resolveCues()
	return p, nil
}

// resolveCues decodes every configured cue up front so the hot loop never
// reads or decodes a file. A cue without a usable file resolves to the
// fallback tone.
func (p *Player) resolveCues() map[domain.Cue]*beep.Buffer {
	names := []domain.Cue{domain.CueStartup, domain.CueWakeAck, domain.CueCommandAck, domain.CueStopAck}
	cues := make(map[domain.Cue]*beep.Buffer, len(names))
	for _, cue := range names {
		cues[cue] = p.resolveCue(cue)
	}
	return cues
}

func (p *Player) resolveCue(cue domain.Cue) *beep.Buffer {
	buf := beep.NewBuffer(beep.Format{SampleRate: playbackRate, NumChannels: 2, Precision: 2})

	if path := p.opts.CueFiles[cue]; path != "" {
		data, err := afero.ReadFile(p.fs, path)
		if err == nil {
			streamer, format, derr := decodeClip(data)
			if derr == nil {
				buf.Append(resampled(streamer, format.SampleRate))
				streamer.Close()
				return buf
			}
			err = derr
		}
		p.logger.Warn("cue file unavailable, using tone", "cue", cue, "path", path, "error", err)
	}

	buf.Append(p.tone())
	return buf
}

// Play sounds the cue and returns once it has finished. A missing or
// unreadable cue file already degraded to the tone at construction, and a
// failed tone to silence, so callers never fail a session over a cue.
func (p *Player) Play(ctx context.Context, cue domain.Cue) error {
	if !p.opts.Enabled {
		return nil
	}

	buf := p.cues[cue]
	if buf == nil {
		p.logger.Warn("unknown cue", "cue", cue)
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.run(ctx, p.withVolume(buf.Streamer(0, buf.Len())))
}

// PlayData decodes a WAV or MP3 clip and plays it to completion.
func (p *Player) PlayData(ctx context.Context, data []byte) error {
	streamer, format, err := decodeClip(data)
	if err != nil {
		return fmt.Errorf("decoding clip: %w", err)
	}
	defer streamer.Close()

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.run(ctx, resampled(streamer, format.SampleRate))
}

func (p *Player) tone() beep.Streamer {
	length := playbackRate.N(p.opts.ToneDuration)
	tone, err := generators.SinTone(playbackRate, p.opts.ToneFrequency)
	if err != nil {
		p.logger.Warn("tone generator failed, playing silence", "error", err)
		return beep.Silence(length)
	}
	return beep.Take(length, tone)
}

func (p *Player) withVolume(s beep.Streamer) beep.Streamer {
	switch {
	case p.opts.Volume <= 0:
		return &effects.Volume{Streamer: s, Base: 2, Silent: true}
	case p.opts.Volume == 1.0:
		return s
	default:
		return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(p.opts.Volume)}
	}
}

// Stop halts whatever is currently sounding. Safe to call at any time,
// including when nothing is playing.
func (p *Player) Stop() {
	p.stopMu.Lock()
	defer p.stopMu.Unlock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

func (p *Player) run(ctx context.Context, s beep.Streamer) error {
	done := make(chan struct{})
	stop := make(chan struct{})

	p.stopMu.Lock()
	p.stop = stop
	p.stopMu.Unlock()
	defer func() {
		p.stopMu.Lock()
		if p.stop == stop {
			p.stop = nil
		}
		p.stopMu.Unlock()
	}()

	p.device.Play(beep.Seq(s, beep.Callback(func() { close(done) })))

	select {
	case <-done:
		return nil
	case <-stop:
		p.device.Clear()
		return nil
	case <-ctx.Done():
		p.device.Clear()
		return ctx.Err()
	}
}

func resampled(s beep.Streamer, from beep.SampleRate) beep.Streamer {
	if from == playbackRate {
		return s
	}
	return beep.Resample(resampleQuality, from, playbackRate, s)
}

// decodeClip sniffs the container instead of trusting a filename: WAV
// images start with a RIFF chunk, everything else is treated as MP3.
func decodeClip(data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	r := io.NopCloser(bytes.NewReader(data))
	if bytes.HasPrefix(data, []byte("RIFF")) {
		return wav.Decode(r)
	}
	return mp3.Decode(r)
}
