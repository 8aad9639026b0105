// Package webhook delivers event envelopes to a remote HTTP endpoint
// without ever blocking the capture loop.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/azzmodious/jarvis/internal/domain"
	"github.com/azzmodious/jarvis/internal/infra"
)

const defaultQueueSize = 32

// Dispatcher queues events and posts their envelopes from a single worker
// goroutine. Enqueue never blocks: when the queue is full the oldest
// pending event is dropped to make room for the newest.
type Dispatcher struct {
	url        string
	httpClient *http.Client
	retry      infra.RetryConfig
	logger     *slog.Logger

	queue chan domain.Event
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewDispatcher(url string, timeout time.Duration, queueSize int, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		retry:      infra.DefaultRetryConfig(),
		logger:     logger,
		queue:      make(chan domain.Event, queueSize),
		done:       make(chan struct{}),
	}
}

// Start launches the delivery worker. The worker drains any queued events
// after Close and exits when the queue is empty or ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		defer close(d.done)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-d.queue:
				if !ok {
					return
				}
				d.deliver(ctx, evt)
			}
		}
	}()
}

// Enqueue adds an event to the delivery queue and returns immediately.
func (d *Dispatcher) Enqueue(evt domain.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.logger.Warn("dispatcher closed, dropping event", "event", evt.Name)
		return
	}

	for {
		select {
		case d.queue <- evt:
			return
		default:
		}
		select {
		case dropped := <-d.queue:
			d.logger.Warn("webhook queue full, dropping oldest event",
				"dropped", dropped.Name, "queued", evt.Name)
		default:
		}
	}
}

// Close stops accepting events and waits for the worker to finish the
// queue it already holds.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}

// QueueLen reports how many events are waiting for delivery.
func (d *Dispatcher) QueueLen() int {
	return len(d.queue)
}

func (d *Dispatcher) deliver(ctx context.Context, evt domain.Event) {
	body, err := evt.Envelope()
	if err != nil {
		d.logger.Error("encoding event envelope", "event", evt.Name, "error", err)
		return
	}

	err = infra.WithRetry(ctx, d.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending event: %w", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook status %s", resp.Status)
		}
		return nil
	})
	if err != nil {
		d.logger.Error("webhook delivery failed, dropping event",
			"event", evt.Name, "url", d.url, "error", err)
		return
	}

	d.logger.Debug("webhook delivered", "event", evt.Name, "url", d.url)
}

// Action adapts the dispatcher to the event router.
type Action struct {
	dispatcher *Dispatcher
}

func NewAction(d *Dispatcher) *Action {
	return &Action{dispatcher: d}
}

func (a *Action) Name() string {
	return "webhook"
}

// Invoke hands the event to the queue; delivery failures surface in the
// worker's logs, never here.
func (a *Action) Invoke(_ context.Context, evt domain.Event) error {
	a.dispatcher.Enqueue(evt)
	return nil
}
