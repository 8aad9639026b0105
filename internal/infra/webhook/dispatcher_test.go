package webhook_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/azzmodious/jarvis/internal/domain"
	"github.com/azzmodious/jarvis/internal/infra/webhook"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func receiveBody(t *testing.T, bodies chan []byte) []byte {
	t.Helper()
	select {
	case body := <-bodies:
		return body
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for webhook delivery")
		return nil
	}
}

func decodeContent(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var envelope struct {
		Content map[string]any `json:"content"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	if envelope.Content == nil {
		t.Fatalf("envelope missing content object: %s", body)
	}
	return envelope.Content
}

func TestDispatcher_DeliversEnvelope(t *testing.T) {
	bodies := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("content type: got %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		bodies <- body
	}))
	defer server.Close()

	d := webhook.NewDispatcher(server.URL, time.Second, 4, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Close()

	d.Enqueue(domain.NewTranscriptEvent("open the blinds", "voice_assistant"))

	content := decodeContent(t, receiveBody(t, bodies))
	if content["text"] != "open the blinds" {
		t.Errorf("text: got %v", content["text"])
	}
	if content["client_id"] != "voice_assistant" {
		t.Errorf("client_id: got %v", content["client_id"])
	}
	if _, ok := content["timestamp"].(float64); !ok {
		t.Errorf("timestamp missing or not a number: %v", content["timestamp"])
	}
}

func TestDispatcher_RetriesUntilSuccess(t *testing.T) {
	var requests atomic.Int32
	bodies := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		body, _ := io.ReadAll(r.Body)
		bodies <- body
	}))
	defer server.Close()

	d := webhook.NewDispatcher(server.URL, time.Second, 4, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Close()

	d.Enqueue(domain.NewTranscriptEvent("retry me", "voice_assistant"))

	content := decodeContent(t, receiveBody(t, bodies))
	if content["text"] != "retry me" {
		t.Errorf("text: got %v", content["text"])
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("requests: got %d, want 3", got)
	}
}

func TestDispatcher_DropsEventAfterRetryBudget(t *testing.T) {
	var failures atomic.Int32
	bodies := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var envelope struct {
			Content map[string]any `json:"content"`
		}
		json.Unmarshal(body, &envelope)
		if envelope.Content["text"] == "doomed" {
			failures.Add(1)
			http.Error(w, "no", http.StatusInternalServerError)
			return
		}
		bodies <- body
	}))
	defer server.Close()

	d := webhook.NewDispatcher(server.URL, time.Second, 4, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Close()

	d.Enqueue(domain.NewTranscriptEvent("doomed", "voice_assistant"))
	d.Enqueue(domain.NewTranscriptEvent("after the drop", "voice_assistant"))

	content := decodeContent(t, receiveBody(t, bodies))
	if content["text"] != "after the drop" {
		t.Errorf("text: got %v", content["text"])
	}
	if got := failures.Load(); got != 3 {
		t.Errorf("failed attempts: got %d, want exactly the retry budget", got)
	}
}

func TestDispatcher_DropsOldestWhenFull(t *testing.T) {
	bodies := make(chan []byte, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- body
	}))
	defer server.Close()

	d := webhook.NewDispatcher(server.URL, time.Second, 1, testLogger())

	// Worker not started yet, so the queue really fills up.
	d.Enqueue(domain.NewTranscriptEvent("first", "c"))
	d.Enqueue(domain.NewTranscriptEvent("second", "c"))
	d.Enqueue(domain.NewTranscriptEvent("third", "c"))

	if got := d.QueueLen(); got != 1 {
		t.Fatalf("queue length: got %d, want 1", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Close()

	content := decodeContent(t, receiveBody(t, bodies))
	if content["text"] != "third" {
		t.Errorf("survivor: got %v, want the newest event", content["text"])
	}
}

func TestDispatcher_CloseDrainsQueue(t *testing.T) {
	var delivered atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered.Add(1)
	}))
	defer server.Close()

	d := webhook.NewDispatcher(server.URL, time.Second, 4, testLogger())

	d.Enqueue(domain.NewStartupEvent("voice_assistant"))
	d.Enqueue(domain.NewTranscriptEvent("last words", "voice_assistant"))

	d.Start(context.Background())
	d.Close()

	if got := delivered.Load(); got != 2 {
		t.Errorf("delivered: got %d, want 2", got)
	}

	// Enqueue after Close must not panic or deliver.
	d.Enqueue(domain.NewTranscriptEvent("too late", "voice_assistant"))
	if got := delivered.Load(); got != 2 {
		t.Errorf("post-close delivery: got %d, want 2", got)
	}
}

func TestAction_InvokeNeverFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	d := webhook.NewDispatcher(server.URL, time.Second, 4, testLogger())
	action := webhook.NewAction(d)

	if action.Name() != "webhook" {
		t.Errorf("name: got %s", action.Name())
	}
	if err := action.Invoke(context.Background(), domain.NewStartupEvent("c")); err != nil {
		t.Errorf("invoke: %v", err)
	}
}
