package audio

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

const pollInterval = 100 * time.Millisecond

// FileSource feeds the assistant from audio files dropped into a watch
// directory, useful for development without a microphone. Files are
// consumed in name order and renamed with a .processed suffix so a
// restart does not replay them.
type FileSource struct {
	fs  afero.Fs
	dir string

	mu   sync.Mutex
	seen map[string]bool
}

func NewFileSource(dir string) *FileSource {
	return NewFileSourceWithFs(afero.NewOsFs(), dir)
}

func NewFileSourceWithFs(fs afero.Fs, dir string) *FileSource {
	return &FileSource{
		fs:   fs,
		dir:  dir,
		seen: make(map[string]bool),
	}
}

func (f *FileSource) Name() string {
	return "file"
}

func (f *FileSource) Start(_ context.Context) error {
	if err := f.fs.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("creating watch dir: %w", err)
	}
	return nil
}

func (f *FileSource) Stop() error {
	return nil
}

// Capture returns the next unprocessed audio file, polling for up to
// window before giving up with nil bytes.
func (f *FileSource) Capture(ctx context.Context, window time.Duration) ([]byte, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(window)
	defer deadline.Stop()

	for {
		data, err := f.nextFile()
		if err != nil || data != nil {
			return data, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-ticker.C:
		}
	}
}

func (f *FileSource) nextFile() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := afero.ReadDir(f.fs, f.dir)
	if err != nil {
		return nil, fmt.Errorf("reading watch dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isAudioFile(entry.Name()) {
			continue
		}

		path := filepath.Join(f.dir, entry.Name())
		if f.seen[path] {
			continue
		}

		data, err := afero.ReadFile(f.fs, path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		f.seen[path] = true
		// Rename is cosmetic for the operator; the seen map is what
		// prevents replays within this process.
		_ = f.fs.Rename(path, path+".processed")

		return data, nil
	}

	return nil, nil
}

func isAudioFile(name string) bool {
	switch filepath.Ext(name) {
	case ".wav", ".mp3", ".m4a", ".webm":
		return true
	}
	return false
}
