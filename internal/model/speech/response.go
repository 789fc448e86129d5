package speech

import "time"

// ASRResponse is a speech recognition result. Alternatives holds every
// candidate transcription, best first; Text equals Alternatives[0] when present.
type ASRResponse struct {
	SessionID    string    `json:"sessionId"`
	Text         string    `json:"text"`
	Alternatives []string  `json:"alternatives"`
	Confidence   float64   `json:"confidence"`
	Duration     int64     `json:"duration"` // milliseconds
	RequestID    string    `json:"requestId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TTSResponse is a synthesized utterance.
type TTSResponse struct {
	SessionID   string    `json:"sessionId"`
	UtteranceID string    `json:"utteranceId,omitempty"`
	AudioData   []byte    `json:"-"`
	Duration    int64     `json:"duration"` // milliseconds
	Format      string    `json:"format"`
	RequestID   string    `json:"requestId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
