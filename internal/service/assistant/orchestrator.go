package assistant

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/daniilk/voice-assistant/backend/internal/model/answer"
	"github.com/daniilk/voice-assistant/backend/internal/model/session"
)

// ErrClosed is returned by operations on a closed orchestrator.
var ErrClosed = errors.New("assistant closed")

// Options configures an Orchestrator.
type Options struct {
	SessionID string
	Client    QueryClient
	// Speaker may be nil when no speech output is available.
	Speaker Speaker
}

// Orchestrator owns the screen state of one assistant session. Every state
// change runs on a single loop goroutine; queries, voice capture and speech
// run in their own goroutines and post their results back to the loop.
type Orchestrator struct {
	client  QueryClient
	speaker Speaker

	ctx    context.Context
	cancel context.CancelFunc
	events chan func()
	done   chan struct{}

	closeOnce sync.Once
	latest    atomic.Pointer[session.View]

	// Loop-owned state.
	view        session.View
	queryGen    uint64
	queryCancel context.CancelFunc
	voiceGen    uint64
	voiceCancel context.CancelFunc
	speechGen   uint64
	speechStop  context.CancelFunc
	subscribers map[int]chan session.View
	nextSubID   int
}

// New starts the orchestrator loop.
func New(opts Options) (*Orchestrator, error) {
	if opts.Client == nil {
		return nil, errors.New("query client is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		client:      opts.Client,
		speaker:     opts.Speaker,
		ctx:         ctx,
		cancel:      cancel,
		events:      make(chan func(), 16),
		done:        make(chan struct{}),
		subscribers: make(map[int]chan session.View),
		view: session.View{
			SessionID: opts.SessionID,
			Rows:      []answer.Row{},
			Phase:     session.PhaseIdle,
		},
	}

	o.view.TTSReady = o.speakerReady()
	if !o.view.TTSReady {
		log.Printf("[assistant] session %s: text-to-speech is not ready", opts.SessionID)
		o.view.Banner = MsgTTSNotReady
	}
	o.store()

	go o.run()
	return o, nil
}

// Snapshot returns the most recently published view.
func (o *Orchestrator) Snapshot() session.View {
	return o.latest.Load().Clone()
}

// Subscribe returns a channel receiving a view after every change, starting
// with the current one. A slow reader only sees the latest view. The channel
// is closed by the returned func or when the orchestrator closes.
func (o *Orchestrator) Subscribe() (<-chan session.View, func()) {
	ch := make(chan session.View, 1)
	var id int

	err := o.exec(func() {
		id = o.nextSubID
		o.nextSubID++
		o.subscribers[id] = ch
		ch <- o.view.Clone()
	})
	if err != nil {
		close(ch)
		return ch, func() {}
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			_ = o.exec(func() {
				if sub, ok := o.subscribers[id]; ok {
					delete(o.subscribers, id)
					close(sub)
				}
			})
		})
	}
	return ch, unsubscribe
}

// SubmitQuery clears previous rows and sends text to the query client.
// Blank text is ignored.
func (o *Orchestrator) SubmitQuery(text string) error {
	return o.exec(func() {
		if o.submit(text) {
			o.publish()
		}
	})
}

// SetInput mirrors edits of the input field. Editing clears the field error.
func (o *Orchestrator) SetInput(text string) error {
	return o.exec(func() {
		o.view.Input = text
		o.view.FieldError = ""
		o.publish()
	})
}

// StartVoiceInput stops speech, clears rows and listens on src. The first
// transcription alternative becomes the input and is submitted.
func (o *Orchestrator) StartVoiceInput(src VoiceSource) error {
	return o.exec(func() {
		o.stopSpeech()
		o.view.Rows = []answer.Row{}

		if src == nil {
			o.view.Banner = MsgVoiceUnavailable
			o.publish()
			return
		}

		if o.voiceCancel != nil {
			o.voiceCancel()
		}
		o.voiceGen++
		gen := o.voiceGen
		ctx, cancel := context.WithCancel(o.ctx)
		o.voiceCancel = cancel
		o.view.Listening = true
		o.publish()

		go func() {
			alternatives, err := src.Listen(ctx)
			o.post(func() { o.finishVoice(gen, alternatives, err) })
		}()
	})
}

// SelectRow speaks the content of the row at index, using the row title as
// utterance id. Nothing happens for an unknown index or an unready speaker.
func (o *Orchestrator) SelectRow(index int) error {
	return o.exec(func() {
		if index < 0 || index >= len(o.view.Rows) {
			return
		}

		ready := o.speakerReady()
		if ready != o.view.TTSReady {
			o.view.TTSReady = ready
			o.publish()
		}
		if !ready {
			return
		}

		row := o.view.Rows[index]
		o.stopSpeech()
		o.speechGen++
		gen := o.speechGen
		ctx, cancel := context.WithCancel(o.ctx)
		o.speechStop = cancel
		o.view.Speaking = true
		o.publish()

		speaker := o.speaker
		go func() {
			err := speaker.Speak(ctx, row.Title, row.Content)
			o.post(func() { o.finishSpeech(gen, err) })
		}()
	})
}

// StopSpeaking halts any utterance in progress.
func (o *Orchestrator) StopSpeaking() error {
	return o.exec(func() {
		o.stopSpeech()
		o.publish()
	})
}

// Clear empties the input field and the rows. A pending query is abandoned
// and its late result is dropped.
func (o *Orchestrator) Clear() error {
	return o.exec(func() {
		o.cancelQuery()
		o.queryGen++
		o.view.Input = ""
		o.view.FieldError = ""
		o.view.Rows = []answer.Row{}
		o.view.Busy = false
		o.view.Phase = session.PhaseIdle
		o.publish()
	})
}

// DismissBanner removes the current notification.
func (o *Orchestrator) DismissBanner() error {
	return o.exec(func() {
		o.view.Banner = ""
		o.publish()
	})
}

// Close stops the loop, cancels outstanding work and closes subscriber channels.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.cancel()
		<-o.done
	})
}

// Done is closed once the orchestrator has shut down.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

func (o *Orchestrator) run() {
	defer close(o.done)
	defer o.shutdown()

	for {
		select {
		case fn := <-o.events:
			fn()
		case <-o.ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) shutdown() {
	o.cancelQuery()
	if o.voiceCancel != nil {
		o.voiceCancel()
		o.voiceCancel = nil
	}
	if o.speechStop != nil {
		o.speechStop()
		o.speechStop = nil
	}
	if o.speaker != nil && o.view.Speaking {
		o.speaker.Stop()
	}
	for id, ch := range o.subscribers {
		delete(o.subscribers, id)
		close(ch)
	}
}

// exec runs fn on the loop and waits until it has been applied.
func (o *Orchestrator) exec(fn func()) error {
	applied := make(chan struct{})
	select {
	case o.events <- func() { fn(); close(applied) }:
	case <-o.done:
		return ErrClosed
	}

	select {
	case <-applied:
		return nil
	case <-o.done:
		return ErrClosed
	}
}

// post queues fn from a worker goroutine without waiting for it.
func (o *Orchestrator) post(fn func()) {
	select {
	case o.events <- fn:
	case <-o.done:
	}
}

func (o *Orchestrator) submit(text string) bool {
	query := strings.TrimSpace(text)
	if query == "" {
		return false
	}

	o.cancelQuery()
	o.queryGen++
	gen := o.queryGen
	ctx, cancel := context.WithCancel(o.ctx)
	o.queryCancel = cancel

	o.view.Input = text
	o.view.FieldError = ""
	o.view.Rows = []answer.Row{}
	o.view.Busy = true
	o.view.Phase = session.PhasePending

	client := o.client
	go func() {
		res, err := client.Query(ctx, query)
		o.post(func() { o.finishQuery(gen, res, err) })
	}()
	return true
}

func (o *Orchestrator) finishQuery(gen uint64, res *answer.QueryResult, err error) {
	if gen != o.queryGen {
		log.Printf("[assistant] session %s: dropping result of superseded query", o.view.SessionID)
		return
	}
	o.cancelQuery()

	outcome := Evaluate(res, err)
	o.view.Busy = false
	o.view.Phase = outcome.Phase
	if outcome.Banner != "" {
		o.view.Banner = outcome.Banner
	}
	if outcome.FieldError != "" {
		o.view.FieldError = outcome.FieldError
	}
	if outcome.Rows != nil {
		o.view.Rows = outcome.Rows
	}
	o.publish()
}

func (o *Orchestrator) finishVoice(gen uint64, alternatives []string, err error) {
	if gen != o.voiceGen {
		return
	}
	if o.voiceCancel != nil {
		o.voiceCancel()
		o.voiceCancel = nil
	}
	o.view.Listening = false

	switch {
	case err != nil && errors.Is(err, context.Canceled):
	case err != nil:
		log.Printf("[assistant] session %s: voice input failed: %v", o.view.SessionID, err)
		o.view.Banner = messageOr(err.Error(), MsgVoiceUnavailable)
	case len(alternatives) == 0:
	default:
		o.view.Input = alternatives[0]
		o.submit(alternatives[0])
	}
	o.publish()
}

func (o *Orchestrator) finishSpeech(gen uint64, err error) {
	if gen != o.speechGen {
		return
	}
	if o.speechStop != nil {
		o.speechStop()
		o.speechStop = nil
	}
	o.view.Speaking = false

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[assistant] session %s: speech failed: %v", o.view.SessionID, err)
		o.view.Banner = messageOr(err.Error(), MsgSomethingWrong)
	}
	o.publish()
}

func (o *Orchestrator) cancelQuery() {
	if o.queryCancel != nil {
		o.queryCancel()
		o.queryCancel = nil
	}
}

func (o *Orchestrator) stopSpeech() {
	if o.speechStop != nil {
		o.speechStop()
		o.speechStop = nil
	}
	o.speechGen++
	o.view.Speaking = false
	if o.speaker != nil {
		o.speaker.Stop()
	}
}

func (o *Orchestrator) speakerReady() bool {
	return o.speaker != nil && o.speaker.Ready()
}

func (o *Orchestrator) store() {
	v := o.view.Clone()
	o.latest.Store(&v)
}

func (o *Orchestrator) publish() {
	o.view.Version++
	o.store()

	for _, ch := range o.subscribers {
		v := o.view.Clone()
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}
