package openai_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/azzmodious/jarvis/internal/application"
	"github.com/azzmodious/jarvis/internal/infra/openai"
)

func TestWhisperClient_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization: got %q", got)
		}

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parsing form: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model field: got %q", got)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language field: got %q", got)
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer file.Close()
		audio, _ := io.ReadAll(file)
		if string(audio) != "fake wav" {
			t.Errorf("uploaded audio: got %q", audio)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":" turn on the lights "}`)
	}))
	defer server.Close()

	client := openai.NewWhisperClientWithURL("test-key", "en", server.URL)

	text, err := client.Transcribe(context.Background(), []byte("fake wav"))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "turn on the lights" {
		t.Errorf("text: got %q, want trimmed transcript", text)
	}
}

func TestWhisperClient_EmptyTextIsNoSpeech(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"  "}`)
	}))
	defer server.Close()

	client := openai.NewWhisperClientWithURL("test-key", "en", server.URL)

	_, err := client.Transcribe(context.Background(), []byte("silence"))
	if !errors.Is(err, application.ErrNoSpeech) {
		t.Fatalf("got %v, want ErrNoSpeech", err)
	}
}

func TestWhisperClient_BadAudioIsUnintelligible(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, `{"error":"could not decode audio"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := openai.NewWhisperClientWithURL("test-key", "en", server.URL)

	_, err := client.Transcribe(context.Background(), []byte("garbage"))
	if !errors.Is(err, application.ErrUnintelligible) {
		t.Fatalf("got %v, want ErrUnintelligible", err)
	}
	// A rejection is final; more uploads of the same audio cannot help.
	if got := requests.Load(); got != 1 {
		t.Errorf("requests for a 400: got %d, want 1", got)
	}
}

func TestWhisperClient_ServerErrorsAreServiceUnavailable(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := openai.NewWhisperClientWithURL("test-key", "en", server.URL)

	_, err := client.Transcribe(context.Background(), []byte("fake wav"))
	if !errors.Is(err, application.ErrServiceUnavailable) {
		t.Fatalf("got %v, want ErrServiceUnavailable", err)
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("requests: got %d, want the full retry budget", got)
	}
}

func TestWhisperClient_RetriesThenSucceeds(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"hello"}`)
	}))
	defer server.Close()

	client := openai.NewWhisperClientWithURL("test-key", "en", server.URL)

	text, err := client.Transcribe(context.Background(), []byte("fake wav"))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hello" {
		t.Errorf("text: got %q, want hello", text)
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("requests: got %d, want 3", got)
	}
}
