package assistant

import (
	"strings"

	"github.com/daniilk/voice-assistant/backend/internal/model/answer"
	"github.com/daniilk/voice-assistant/backend/internal/model/session"
)

// RenderPod flattens a pod into a row. Plain-text fragments of every subpod
// are joined in order without a separator; other representations are skipped.
func RenderPod(pod answer.Pod) answer.Row {
	var b strings.Builder
	for _, subpod := range pod.Subpods {
		for _, content := range subpod.Contents {
			switch content.Kind {
			case answer.KindPlainText:
				b.WriteString(content.Text)
			default:
				// other representations have no text form
			}
		}
	}
	return answer.Row{Title: pod.Title, Content: b.String()}
}

// RenderRows renders the non-error pods newest first: each pod is inserted
// ahead of the ones rendered before it.
func RenderRows(pods []answer.Pod) []answer.Row {
	rows := make([]answer.Row, 0, len(pods))
	for _, pod := range pods {
		if pod.Error {
			continue
		}
		rows = append([]answer.Row{RenderPod(pod)}, rows...)
	}
	return rows
}

// Outcome is the screen change caused by a finished query.
type Outcome struct {
	Phase      session.Phase
	Rows       []answer.Row
	Banner     string
	FieldError string
}

// Evaluate classifies a query result. err is a transport, timeout or decode failure.
func Evaluate(res *answer.QueryResult, err error) Outcome {
	switch {
	case err != nil:
		return Outcome{Phase: session.PhaseTransportFailure, Banner: messageOr(err.Error(), MsgSomethingWrong)}
	case res == nil:
		return Outcome{Phase: session.PhaseTransportFailure, Banner: MsgSomethingWrong}
	case res.Error:
		return Outcome{Phase: session.PhaseServerError, Banner: messageOr(strings.TrimSpace(res.ErrorMessage), MsgSomethingWrong)}
	case !res.Success:
		return Outcome{Phase: session.PhaseUnrecognized, FieldError: MsgNotUnderstood}
	default:
		return Outcome{Phase: session.PhaseAnswered, Rows: RenderRows(res.Pods)}
	}
}

// Message is the single line a one-shot caller shows for the outcome.
func (o Outcome) Message() string {
	if o.Banner != "" {
		return o.Banner
	}
	return o.FieldError
}
