package stream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"chefassist/internal/actions"
)

// ErrClosed is returned when writing to an emitter that already sent a
// terminal frame or was closed.
var ErrClosed = errors.New("stream closed")

// DefaultBuffer is the frame buffer used when NewEmitter gets a non-positive size.
const DefaultBuffer = 32

// Emitter queues frames for one response. The queue is bounded: when the
// consumer falls behind, writes block until there is room or the context ends,
// which in turn stalls the engine's streaming callback.
//
// An Emitter has a single producer. Frames is read by exactly one consumer.
type Emitter struct {
	frames    chan Frame
	carry     []byte
	finished  bool
	closeOnce sync.Once
}

// NewEmitter creates an emitter with the given queue size.
func NewEmitter(buffer int) *Emitter {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Emitter{frames: make(chan Frame, buffer)}
}

// Frames is closed after the terminal frame, or by Close.
func (e *Emitter) Frames() <-chan Frame {
	return e.frames
}

// Content queues narrative text. A trailing partial UTF-8 sequence is held back
// until the next call so no frame ends inside a character.
func (e *Emitter) Content(ctx context.Context, text string) error {
	if e.finished {
		return ErrClosed
	}
	buf := append(e.carry, text...)
	complete, rest := splitComplete(buf)
	e.carry = append([]byte(nil), rest...)
	if len(complete) == 0 {
		return nil
	}
	return e.send(ctx, Frame{Type: FrameContent, Text: string(complete)})
}

// Action queues an action block after any held-back text.
func (e *Emitter) Action(ctx context.Context, b actions.Block) error {
	if err := e.flush(ctx); err != nil {
		return err
	}
	return e.send(ctx, Frame{Type: FrameAction, Action: b})
}

// Done sends the end marker and closes the queue.
func (e *Emitter) Done(ctx context.Context) error {
	if err := e.flush(ctx); err != nil {
		return err
	}
	return e.terminate(ctx, Frame{Type: FrameDone})
}

// Fail drops held-back text, sends an error frame and closes the queue.
func (e *Emitter) Fail(ctx context.Context, message string) error {
	e.carry = nil
	return e.terminate(ctx, Frame{Type: FrameError, Message: message})
}

// Close ends the stream without a terminal frame, used when the consumer is
// gone. It is safe to call more than once.
func (e *Emitter) Close() {
	e.finished = true
	e.carry = nil
	e.closeOnce.Do(func() { close(e.frames) })
}

func (e *Emitter) terminate(ctx context.Context, f Frame) error {
	if err := e.send(ctx, f); err != nil {
		return err
	}
	e.Close()
	return nil
}

func (e *Emitter) flush(ctx context.Context) error {
	if len(e.carry) == 0 {
		return nil
	}
	text := strings.ToValidUTF8(string(e.carry), string(utf8.RuneError))
	e.carry = nil
	return e.send(ctx, Frame{Type: FrameContent, Text: text})
}

func (e *Emitter) send(ctx context.Context, f Frame) error {
	if e.finished {
		return ErrClosed
	}
	select {
	case e.frames <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// splitComplete returns the longest prefix of b that does not end inside a
// multi-byte sequence, and the remainder.
func splitComplete(b []byte) ([]byte, []byte) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return b, nil
		}
		return b[:i], b[i:]
	}
	return b, nil
}
