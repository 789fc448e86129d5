package speech

import (
	"io"
)

// ASRRequest is a speech recognition request.
type ASRRequest struct {
	SessionID string    `json:"sessionId"`
	AudioData io.Reader `json:"-"`
	Format    string    `json:"format"`   // wav, mp3, pcm, ...
	Language  string    `json:"language"` // en-US, ...
}

// TTSRequest is a speech synthesis request.
type TTSRequest struct {
	SessionID   string  `json:"sessionId"`
	UtteranceID string  `json:"utteranceId,omitempty"`
	Text        string  `json:"text"`
	Voice       string  `json:"voice"`
	Speed       float32 `json:"speed"`  // 0.5-2.0
	Volume      float32 `json:"volume"` // 0.0-1.0
	Format      string  `json:"format"` // mp3
	Language    string  `json:"language"`
}
