package domain

import (
	"encoding/json"
	"time"
)

const (
	EventStartup       = "startup"
	EventTranscript    = "transcript"
	EventPromptInvoked = "prompt_invoked"
)

// StartupText is the announcement text carried by the startup event.
const StartupText = "Voice assistant is now online."

// Event is one outbound notification produced by the pipeline. Fields holds
// the event-specific payload; Timestamp is seconds since the Unix epoch.
type Event struct {
	Name      string
	Fields    map[string]any
	Timestamp float64
	ClientID  string
}

func newEvent(name, clientID string, fields map[string]any) Event {
	return Event{
		Name:      name,
		Fields:    fields,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		ClientID:  clientID,
	}
}

func NewStartupEvent(clientID string) Event {
	return newEvent(EventStartup, clientID, map[string]any{
		"action": "startup",
		"text":   StartupText,
	})
}

func NewTranscriptEvent(text, clientID string) Event {
	return newEvent(EventTranscript, clientID, map[string]any{
		"text": text,
	})
}

func NewPromptInvokedEvent(prompt string, waitForResponse bool, clientID string) Event {
	return newEvent(EventPromptInvoked, clientID, map[string]any{
		"prompt":            prompt,
		"wait_for_response": waitForResponse,
	})
}

// Envelope renders the event in the fixed outer shape webhook consumers
// expect: {"content":{...fields..., "timestamp":<float>, "client_id":<string>}}.
func (e Event) Envelope() ([]byte, error) {
	content := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		content[k] = v
	}
	content["timestamp"] = e.Timestamp
	content["client_id"] = e.ClientID
	return json.Marshal(map[string]any{"content": content})
}
