package assistant

// User-facing messages.
const (
	MsgSomethingWrong   = "Something went wrong"
	MsgNotUnderstood    = "Sorry, I do not understand"
	MsgVoiceUnavailable = "Voice recognition is unavailable"
	MsgTTSNotReady      = "Text-to-speech is not ready"
)

func messageOr(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}
