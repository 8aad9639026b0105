package domain

// Cue names an acknowledgment sound played at a state transition.
type Cue string

const (
	CueStartup    Cue = "startup"
	CueWakeAck    Cue = "wake_ack"
	CueCommandAck Cue = "command_ack"
	CueStopAck    Cue = "stop_ack"
)
