package assistant

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daniilk/voice-assistant/backend/internal/model/answer"
	"github.com/daniilk/voice-assistant/backend/internal/model/session"
)

func TestRenderPodConcatenatesPlainText(t *testing.T) {
	pod := answer.Pod{
		Title: "Decimal approximation",
		Subpods: []answer.Subpod{
			{Contents: []answer.Content{answer.PlainText("3.14159"), answer.Image("https://example.test/pi.gif", "pi")}},
			{Contents: []answer.Content{
				{Kind: answer.KindMathML, Text: "<math/>"},
				answer.PlainText("26535"),
				answer.Unknown("cell", "{}"),
			}},
		},
	}

	row := RenderPod(pod)
	require.Equal(t, answer.Row{Title: "Decimal approximation", Content: "3.1415926535"}, row)
}

func TestRenderPodWithoutText(t *testing.T) {
	pod := answer.Pod{Title: "Plot", Subpods: []answer.Subpod{{Contents: []answer.Content{answer.Image("u", "a")}}}}
	require.Equal(t, answer.Row{Title: "Plot"}, RenderPod(pod))
}

func TestRenderRowsOrder(t *testing.T) {
	skipped := textPod("Skipped", "?")
	skipped.Error = true

	rows := RenderRows([]answer.Pod{textPod("1", "a"), textPod("2", "b"), skipped, textPod("3", "c")})
	require.Equal(t, []answer.Row{
		{Title: "3", Content: "c"},
		{Title: "2", Content: "b"},
		{Title: "1", Content: "a"},
	}, rows)
}

type silentError struct{}

func (silentError) Error() string { return "" }

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		res  *answer.QueryResult
		err  error
		want Outcome
	}{
		{
			name: "answered",
			res:  resultWithPods(textPod("Result", "4")),
			want: Outcome{Phase: session.PhaseAnswered, Rows: []answer.Row{{Title: "Result", Content: "4"}}},
		},
		{
			name: "answered without pods",
			res:  resultWithPods(),
			want: Outcome{Phase: session.PhaseAnswered, Rows: []answer.Row{}},
		},
		{
			name: "unrecognized",
			res:  &answer.QueryResult{},
			want: Outcome{Phase: session.PhaseUnrecognized, FieldError: MsgNotUnderstood},
		},
		{
			name: "server error wins over success",
			res:  &answer.QueryResult{Success: true, Error: true, ErrorMessage: "Invalid appid"},
			want: Outcome{Phase: session.PhaseServerError, Banner: "Invalid appid"},
		},
		{
			name: "server error without message",
			res:  &answer.QueryResult{Error: true, ErrorMessage: "  "},
			want: Outcome{Phase: session.PhaseServerError, Banner: MsgSomethingWrong},
		},
		{
			name: "transport failure",
			err:  errors.New("timeout"),
			want: Outcome{Phase: session.PhaseTransportFailure, Banner: "timeout"},
		},
		{
			name: "transport failure without message",
			err:  silentError{},
			want: Outcome{Phase: session.PhaseTransportFailure, Banner: MsgSomethingWrong},
		},
		{
			name: "missing result",
			want: Outcome{Phase: session.PhaseTransportFailure, Banner: MsgSomethingWrong},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Evaluate(tt.res, tt.err))
		})
	}
}

func TestOutcomeMessage(t *testing.T) {
	require.Equal(t, "boom", Outcome{Banner: "boom"}.Message())
	require.Equal(t, MsgNotUnderstood, Outcome{FieldError: MsgNotUnderstood}.Message())
	require.Empty(t, Outcome{Phase: session.PhaseAnswered}.Message())
}
