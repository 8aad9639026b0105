package audio

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestFileSource_CapturePicksUpStagedFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	source := NewFileSourceWithFs(fs, "/watch")

	if err := source.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	want := []byte("fake wav bytes")
	if err := afero.WriteFile(fs, "/watch/001-command.wav", want, 0o644); err != nil {
		t.Fatalf("stage file: %v", err)
	}

	got, err := source.Capture(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("captured bytes: got %q, want %q", got, want)
	}

	renamed, err := afero.Exists(fs, "/watch/001-command.wav.processed")
	if err != nil || !renamed {
		t.Errorf("processed rename missing (exists=%v, err=%v)", renamed, err)
	}
}

func TestFileSource_CaptureReturnsEmptyAfterWindow(t *testing.T) {
	fs := afero.NewMemMapFs()
	source := NewFileSourceWithFs(fs, "/watch")

	if err := source.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	start := time.Now()
	got, err := source.Capture(context.Background(), 150*time.Millisecond)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if got != nil {
		t.Errorf("captured %d bytes from empty dir", len(got))
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("capture held past window: %v", elapsed)
	}
}

func TestFileSource_SkipsProcessedAndNonAudio(t *testing.T) {
	fs := afero.NewMemMapFs()
	source := NewFileSourceWithFs(fs, "/watch")

	if err := source.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	afero.WriteFile(fs, "/watch/notes.txt", []byte("hello"), 0o644)
	afero.WriteFile(fs, "/watch/old.wav.processed", []byte("old"), 0o644)
	afero.WriteFile(fs, "/watch/next.mp3", []byte("next"), 0o644)

	got, err := source.Capture(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if string(got) != "next" {
		t.Errorf("captured %q, want the mp3 payload", got)
	}

	second, err := source.Capture(context.Background(), 150*time.Millisecond)
	if err != nil {
		t.Fatalf("second capture: %v", err)
	}
	if second != nil {
		t.Errorf("second capture returned %q, want nothing", second)
	}
}

func TestFileSource_CaptureHonorsContext(t *testing.T) {
	fs := afero.NewMemMapFs()
	source := NewFileSourceWithFs(fs, "/watch")
	source.Start(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := source.Capture(ctx, time.Minute); err == nil {
		t.Error("capture ignored cancelled context")
	}
}
