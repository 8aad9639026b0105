// Package openai implements speech transcription against the OpenAI
// audio API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/azzmodious/jarvis/internal/application"
	"github.com/azzmodious/jarvis/internal/infra"
)

const defaultBaseURL = "https://api.openai.com/v1"

type WhisperClient struct {
	apiKey     string
	language   string
	baseURL    string
	httpClient *http.Client
}

func NewWhisperClient(apiKey, language string) *WhisperClient {
	return NewWhisperClientWithURL(apiKey, language, defaultBaseURL)
}

// NewWhisperClientWithURL allows tests to point the client at a local server.
func NewWhisperClientWithURL(apiKey, language, baseURL string) *WhisperClient {
	return &WhisperClient{
		apiKey:     apiKey,
		language:   language,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads one utterance and returns its text. Failures map onto
// the capture error contract: empty recognitions to ErrNoSpeech, rejected
// audio to ErrUnintelligible after a single attempt, and transport or
// server failures to ErrServiceUnavailable once the retry budget is spent.
// Only retryable statuses burn further attempts.
func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var (
		result     transcriptionResponse
		lastStatus int
	)

	retryErr := infra.WithRetry(ctx, infra.DefaultRetryConfig(), func() error {
		lastStatus = 0

		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)

		part, err := writer.CreateFormFile("file", "audio.wav")
		if err != nil {
			return fmt.Errorf("creating form file: %w", err)
		}
		if _, err = part.Write(audio); err != nil {
			return fmt.Errorf("writing audio: %w", err)
		}
		if err = writer.WriteField("model", "whisper-1"); err != nil {
			return fmt.Errorf("writing model field: %w", err)
		}
		if err = writer.WriteField("language", c.language); err != nil {
			return fmt.Errorf("writing language field: %w", err)
		}
		if err = writer.Close(); err != nil {
			return fmt.Errorf("closing form: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			lastStatus = resp.StatusCode
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			if !infra.IsRetryableHTTPStatus(resp.StatusCode) {
				return fmt.Errorf("transcription API status %d: %s: %w", resp.StatusCode, respBody, infra.ErrPermanent)
			}
			return fmt.Errorf("transcription API status %d: %s", resp.StatusCode, respBody)
		}

		if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	})

	if retryErr != nil {
		if lastStatus == http.StatusBadRequest || lastStatus == http.StatusUnprocessableEntity {
			return "", fmt.Errorf("%w: %v", application.ErrUnintelligible, retryErr)
		}
		return "", fmt.Errorf("%w: %v", application.ErrServiceUnavailable, retryErr)
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", application.ErrNoSpeech
	}
	return text, nil
}
