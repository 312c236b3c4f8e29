package flow

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/chatreview/core"
)

// Stream is a finite, non-restartable sequence of TokenEvents produced by
// one model turn. It ends after exactly one terminal event (done or error),
// or early when the caller's context is cancelled or Close is called.
//
//	for s.Next() {
//	  ev := s.Current()
//	  ...
//	}
//	if err := s.Err(); err != nil { ... }
type Stream struct {
	ctx    context.Context
	events <-chan core.TokenEvent
	done   <-chan struct{}

	closeOnce sync.Once
	closed    chan struct{}

	cur      core.TokenEvent
	err      error
	finished bool
}

func newStream(ctx context.Context, events <-chan core.TokenEvent, done <-chan struct{}, closed chan struct{}) *Stream {
	return &Stream{ctx: ctx, events: events, done: done, closed: closed}
}

// NewStaticStream returns a stream replaying events. It is used for turns
// answered without calling the model.
func NewStaticStream(events ...core.TokenEvent) *Stream {
	ch := make(chan core.TokenEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	done := make(chan struct{})
	close(done)
	return newStream(context.Background(), ch, done, make(chan struct{}))
}

// Next advances to the next event. It returns false once the stream ended.
func (s *Stream) Next() bool {
	if s.finished {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		s.finished = true
		s.Close()
		return false
	}
	select {
	case ev, ok := <-s.events:
		if !ok {
			s.finished = true
			s.err = core.Errorf("flow.Stream", core.ErrTimeout, "stream detached before the turn ended")
			return false
		}
		s.cur = ev
		if ev.IsTerminal() {
			s.finished = true
			if ev.Type == core.EventError {
				s.err = ev.Err
				if s.err == nil {
					s.err = errors.New(ev.Detail)
				}
			}
		}
		return true
	case <-s.ctx.Done():
		s.err = s.ctx.Err()
		s.finished = true
		s.Close()
		return false
	}
}

// Current returns the event Next advanced to.
func (s *Stream) Current() core.TokenEvent { return s.cur }

// Err returns the failure that ended the stream, if any.
func (s *Stream) Err() error { return s.err }

// Close detaches the reader. The turn itself keeps running until the model
// call terminates, so its answer is still recorded.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Done is closed once the producing turn has fully finished.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Collect drains s and returns all events read.
func Collect(s *Stream) ([]core.TokenEvent, error) {
	defer s.Close()
	var out []core.TokenEvent
	for s.Next() {
		out = append(out, s.Current())
	}
	return out, s.Err()
}

// emitter delivers events to a Stream until the reader goes away or stops
// reading past the turn deadline. It is only used by the producing
// goroutine.
type emitter struct {
	out      chan<- core.TokenEvent
	ctx      context.Context
	turn     context.Context
	closed   <-chan struct{}
	detached bool
}

func (e *emitter) emit(ev core.TokenEvent) {
	if e.detached {
		return
	}
	select {
	case e.out <- ev:
		return
	default:
	}
	select {
	case e.out <- ev:
	case <-e.ctx.Done():
		e.detached = true
	case <-e.closed:
		e.detached = true
	case <-e.turn.Done():
		e.detached = true
	}
}

func (e *emitter) token(text string) {
	if text != "" {
		e.emit(core.TokenChunk(text))
	}
}
