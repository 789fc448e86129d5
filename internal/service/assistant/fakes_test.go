package assistant

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/daniilk/voice-assistant/backend/internal/model/answer"
	"github.com/daniilk/voice-assistant/backend/internal/model/session"
)

type queryReply struct {
	res *answer.QueryResult
	err error
}

type pendingQuery struct {
	input string
	ctx   context.Context
	reply chan queryReply
}

func (p pendingQuery) answer(res *answer.QueryResult, err error) {
	p.reply <- queryReply{res: res, err: err}
}

// gatedClient hands every query to the test, which decides when and how it returns.
type gatedClient struct {
	queries chan pendingQuery
}

func newGatedClient() *gatedClient {
	return &gatedClient{queries: make(chan pendingQuery, 8)}
}

func (c *gatedClient) Query(ctx context.Context, input string) (*answer.QueryResult, error) {
	p := pendingQuery{input: input, ctx: ctx, reply: make(chan queryReply, 1)}
	c.queries <- p
	r := <-p.reply
	return r.res, r.err
}

func (c *gatedClient) next(t *testing.T) pendingQuery {
	t.Helper()
	select {
	case p := <-c.queries:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for query")
		return pendingQuery{}
	}
}

func (c *gatedClient) expectNone(t *testing.T) {
	t.Helper()
	select {
	case p := <-c.queries:
		t.Fatalf("unexpected query %q", p.input)
	case <-time.After(20 * time.Millisecond):
	}
}

type spoken struct {
	utteranceID string
	text        string
}

type fakeSpeaker struct {
	mu     sync.Mutex
	ready  bool
	err    error
	spoken []spoken
	stops  int
}

func (s *fakeSpeaker) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *fakeSpeaker) Speak(_ context.Context, utteranceID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, spoken{utteranceID: utteranceID, text: text})
	return s.err
}

func (s *fakeSpeaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *fakeSpeaker) utterances() []spoken {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]spoken, len(s.spoken))
	copy(out, s.spoken)
	return out
}

func (s *fakeSpeaker) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type fakeVoice struct {
	alternatives []string
	err          error
}

func (v fakeVoice) Listen(context.Context) ([]string, error) {
	return v.alternatives, v.err
}

func newTestOrchestrator(t *testing.T, client QueryClient, speaker Speaker) *Orchestrator {
	t.Helper()
	o, err := New(Options{SessionID: "test", Client: client, Speaker: speaker})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	t.Cleanup(o.Close)
	return o
}

func waitForView(t *testing.T, o *Orchestrator, desc string, pred func(session.View) bool) session.View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		v := o.Snapshot()
		if pred(v) {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last view: %+v", desc, v)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// settle gives worker goroutines time to post and then drains the loop.
func settle(t *testing.T, o *Orchestrator) {
	t.Helper()
	time.Sleep(30 * time.Millisecond)
	if err := o.exec(func() {}); err != nil {
		t.Fatalf("exec err: %v", err)
	}
}

func resultWithPods(pods ...answer.Pod) *answer.QueryResult {
	return &answer.QueryResult{Success: true, Pods: pods}
}

func textPod(title string, fragments ...string) answer.Pod {
	subpods := make([]answer.Subpod, 0, len(fragments))
	for _, f := range fragments {
		subpods = append(subpods, answer.Subpod{Contents: []answer.Content{answer.PlainText(f)}})
	}
	return answer.Pod{Title: title, Subpods: subpods}
}
