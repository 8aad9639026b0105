// Package script runs external programs in response to assistant events.
package script

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/azzmodious/jarvis/internal/domain"
)

// Runner invokes one executable per event with the event envelope on
// stdin. Each invocation gets its own timeout so a hung script cannot
// stall the router.
type Runner struct {
	path    string
	timeout time.Duration
	logger  *slog.Logger
}

func NewRunner(path string, timeout time.Duration, logger *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Runner{
		path:    path,
		timeout: timeout,
		logger:  logger,
	}
}

func (r *Runner) Name() string {
	return "script"
}

func (r *Runner) Invoke(ctx context.Context, evt domain.Event) error {
	body, err := evt.Envelope()
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, r.path)
	cmd.Stdin = bytes.NewReader(body)
	// Scripts that only care which event fired can skip parsing stdin.
	cmd.Env = append(os.Environ(), "ASSISTANT_EVENT="+evt.Name)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("running %s: %w (output: %s)", r.path, err, truncate(output))
	}

	r.logger.Debug("script finished", "path", r.path, "event", evt.Name)
	return nil
}

func truncate(b []byte) string {
	const max = 256
	b = bytes.TrimSpace(b)
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
