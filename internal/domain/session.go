package domain

import (
	"time"

	"github.com/google/uuid"
)

type ListeningState string

const (
	StateIdle                 ListeningState = "idle"
	StateWakeWordListening    ListeningState = "wake_listening"
	StateAcknowledging        ListeningState = "acknowledging"
	StateCommandCapturing     ListeningState = "command_capturing"
	StateCommandAcknowledging ListeningState = "command_acknowledging"
	StateDispatching          ListeningState = "dispatching"
	StateStopAcknowledging    ListeningState = "stop_acknowledging"
)

// Session is one command-capture cycle. It exists from the moment capture
// begins (wake word heard or trigger accepted) until the pipeline returns
// to idle. Wake-word listening itself happens outside any session.
type Session struct {
	ID        string
	ClientID  string
	StartedAt time.Time
	State     ListeningState
}

func NewSession(clientID string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		StartedAt: time.Now(),
		State:     StateCommandCapturing,
	}
}
