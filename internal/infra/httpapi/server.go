// Package httpapi exposes the assistant's network surface: the prompt
// trigger that starts a capture session without a wake word, and the
// playback receiver for remotely supplied audio.
package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/azzmodious/jarvis/internal/application"
	"github.com/azzmodious/jarvis/internal/domain"
)

const (
	maxAudioBody  = 10 * 1024 * 1024
	maxPromptBody = 64 * 1024
)

// base64Fields are scanned, in order, for the clip when a playback
// request arrives JSON-wrapped instead of as bare base64 text.
var base64Fields = []string{"audio", "data", "audio_base64", "speech", "content", "file"}

// uploadExtensions whitelists the containers the playback path decodes.
var uploadExtensions = map[string]bool{".wav": true, ".mp3": true}

// Triggerer is the slice of the assistant the server drives.
type Triggerer interface {
	TriggerPrompt(ctx context.Context, prompt, clientID string) error
	Active() bool
	State() domain.ListeningState
}

// AudioPlayer renders a decoded clip on the output device.
type AudioPlayer interface {
	PlayData(ctx context.Context, data []byte) error
	Stop()
}

// Options configures the network surface.
type Options struct {
	Addr string
	// AuthToken, when set, is required on POST endpoints via the
	// X-Auth-Token header or token query parameter.
	AuthToken string
	// WaitForResponse is echoed in prompt_invoked event payloads.
	WaitForResponse bool
}

// Server hosts the trigger and playback endpoints alongside the capture
// loop. Session exclusivity is the assistant's concern; the server only
// translates its verdict into status codes.
type Server struct {
	opts        Options
	assistant   Triggerer
	player      AudioPlayer
	router      *application.Router
	logger      *slog.Logger
	mux         *http.ServeMux
	rateLimiter *RateLimiter

	mu      sync.Mutex
	server  *http.Server
	running bool
}

func NewServer(opts Options, assistant Triggerer, player AudioPlayer, router *application.Router, logger *slog.Logger) *Server {
	s := &Server{
		opts:        opts,
		assistant:   assistant,
		player:      player,
		router:      router,
		logger:      logger,
		mux:         http.NewServeMux(),
		rateLimiter: NewRateLimiter(30, time.Minute),
	}
	s.mux.HandleFunc("POST /prompt", s.protect(s.handlePrompt))
	s.mux.HandleFunc("POST /play-audio", s.protect(s.handlePlayUpload))
	s.mux.HandleFunc("POST /play-audio-base64", s.protect(s.handlePlayBase64))
	s.mux.HandleFunc("POST /play-audio-raw", s.protect(s.handlePlayRaw))
	s.mux.HandleFunc("POST /stop-audio", s.protect(s.handleStopAudio))
	// Health checks bypass auth and rate limiting.
	s.mux.HandleFunc("GET /status", s.handleStatus)
	return s
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.server = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info("trigger server starting", "addr", s.opts.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("trigger server error", "error", err)
		}
	}()

	s.running = true
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
		if err := s.server.Close(); err != nil {
			return fmt.Errorf("closing server: %w", err)
		}
	}

	s.running = false
	return nil
}

// Handler exposes the mux so tests can exercise routes without a listener.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// protect wraps a handler with the auth check and per-IP rate limit
// applied to every POST endpoint.
func (s *Server) protect(next http.HandlerFunc) http.HandlerFunc {
	return s.rateLimiter.Middleware(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AuthToken != "" {
			token := r.Header.Get("X-Auth-Token")
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token != s.opts.AuthToken {
				s.logger.Warn("unauthorized request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				writeJSON(w, http.StatusUnauthorized, statusResponse{Status: "error", Message: "unauthorized"})
				return
			}
		}
		next(w, r)
	})
}

type promptRequest struct {
	Command string `json:"command"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// handlePrompt starts a capture session without wake-word detection. The
// response acknowledges receipt only; transcription and dispatch proceed
// after it is written.
func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPromptBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "failed to read body"})
		return
	}
	defer r.Body.Close()

	var req promptRequest
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "invalid JSON body"})
			return
		}
	}

	clientID := clientIP(r)

	if err := s.assistant.TriggerPrompt(r.Context(), req.Command, clientID); err != nil {
		if errors.Is(err, application.ErrSessionActive) {
			writeJSON(w, http.StatusConflict, statusResponse{
				Status:  "error",
				Message: "A session is already active.",
			})
			return
		}
		s.logger.Error("trigger failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "error", Message: "trigger failed"})
		return
	}

	s.logger.Info("prompt trigger accepted", "client", clientID, "preset", req.Command != "")
	s.router.Dispatch(r.Context(), domain.NewPromptInvokedEvent(req.Command, s.opts.WaitForResponse, clientID))

	writeJSON(w, http.StatusOK, statusResponse{
		Status:  "success",
		Message: "Command received and is being processed.",
	})
}

// handlePlayBase64 accepts a clip as base64 text, bare or wrapped in a
// JSON object. Playback runs on its own goroutine; the response reports
// only that the clip decoded and was handed to the player.
func (s *Server) handlePlayBase64(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAudioBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "failed to read body"})
		return
	}
	defer r.Body.Close()

	encoded := extractBase64(body)
	if encoded == "" {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "no audio data provided"})
		return
	}

	clip, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "invalid base64 data"})
		return
	}

	s.dispatchPlayback(r.Context(), clip)
	writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: "Audio playback started."})
}

// handlePlayUpload accepts a clip as a multipart upload in the "audio"
// field, gated on a container whitelist taken from the filename.
func (s *Server) handlePlayUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxAudioBody); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "no audio file provided"})
		return
	}
	defer file.Close()

	if !uploadExtensions[strings.ToLower(filepath.Ext(header.Filename))] {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "unsupported audio format"})
		return
	}

	clip, err := io.ReadAll(io.LimitReader(file, maxAudioBody))
	if err != nil || len(clip) == 0 {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "failed to read audio file"})
		return
	}

	s.dispatchPlayback(r.Context(), clip)
	writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: "Audio playback started."})
}

// handleStopAudio halts whatever the player is currently sounding.
func (s *Server) handleStopAudio(w http.ResponseWriter, r *http.Request) {
	s.player.Stop()
	writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: "Audio playback stopped."})
}

// handlePlayRaw plays the request body as-is.
func (s *Server) handlePlayRaw(w http.ResponseWriter, r *http.Request) {
	clip, err := io.ReadAll(io.LimitReader(r.Body, maxAudioBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "failed to read body"})
		return
	}
	defer r.Body.Close()

	if len(clip) == 0 {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "no audio data provided"})
		return
	}

	s.dispatchPlayback(r.Context(), clip)
	writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: "Audio playback started."})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "online",
		"active_session": s.assistant.Active(),
		"state":          s.assistant.State(),
	})
}

// dispatchPlayback renders the clip fire-and-forget. Decode errors at
// playback time are logged, not reported to the sender, who already got
// a success response for the handoff.
func (s *Server) dispatchPlayback(ctx context.Context, clip []byte) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := s.player.PlayData(ctx, clip); err != nil {
			s.logger.Warn("received audio playback failed", "bytes", len(clip), "error", err)
		}
	}()
}

// extractBase64 finds the encoded payload in a request body: a JSON
// object is scanned for the first populated well-known field, anything
// else is treated as bare base64 text. A data URL prefix is stripped
// either way.
func extractBase64(body []byte) string {
	text := strings.TrimSpace(string(body))

	var wrapped map[string]any
	if json.Unmarshal(body, &wrapped) == nil {
		text = ""
		for _, field := range base64Fields {
			if v, ok := wrapped[field].(string); ok && v != "" {
				text = v
				break
			}
		}
	}

	if strings.HasPrefix(text, "data:") {
		if _, after, ok := strings.Cut(text, ","); ok {
			text = after
		}
	}
	return text
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
