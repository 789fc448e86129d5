package session

import "github.com/daniilk/voice-assistant/backend/internal/model/answer"

// Phase reports where the most recent query is in its lifecycle.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhasePending          Phase = "pending"
	PhaseAnswered         Phase = "answered"
	PhaseServerError      Phase = "server_error"
	PhaseUnrecognized     Phase = "unrecognized"
	PhaseTransportFailure Phase = "transport_failure"
)

// Terminal reports whether the phase ends a query.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseAnswered, PhaseServerError, PhaseUnrecognized, PhaseTransportFailure:
		return true
	default:
		return false
	}
}

// View is an immutable snapshot of the assistant screen.
type View struct {
	SessionID  string       `json:"sessionId,omitempty"`
	Input      string       `json:"input"`
	FieldError string       `json:"fieldError,omitempty"`
	Rows       []answer.Row `json:"rows"`
	Busy       bool         `json:"busy"`
	Listening  bool         `json:"listening"`
	Speaking   bool         `json:"speaking"`
	TTSReady   bool         `json:"ttsReady"`
	Banner     string       `json:"banner,omitempty"`
	Phase      Phase        `json:"phase"`
	Version    uint64       `json:"version"`
}

// Clone returns a copy whose row slice does not alias the receiver's.
func (v View) Clone() View {
	rows := make([]answer.Row, len(v.Rows))
	copy(rows, v.Rows)
	v.Rows = rows
	return v
}
