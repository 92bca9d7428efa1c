package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/codefionn/promethean-bridge/internal/logger"
)

// frame is one queue item on the wire
type frame struct {
	Payload []byte `cbor:"1,keyasint"`
}

var frameEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("channel: failed to create CBOR enc mode: %v", err))
	}
	frameEncMode = em
}

// StreamSender writes queue payloads as CBOR frames to a stream
type StreamSender struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	w      io.Writer
	closed bool
}

// NewStreamSender creates a sender writing to w
func NewStreamSender(w io.Writer) *StreamSender {
	return &StreamSender{
		enc: frameEncMode.NewEncoder(w),
		w:   w,
	}
}

// Put writes one frame. It blocks while the pipe is full, which is the
// back-pressure the bounded in-memory queue gives on the other side.
func (s *StreamSender) Put(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrQueueClosed
	}
	if err := s.enc.Encode(frame{Payload: payload}); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Close closes the underlying writer when it is closable
func (s *StreamSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if closer, ok := s.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// NewStreamReceiver decodes frames from r into a bounded queue. The queue is
// closed when the stream ends, so a consumer blocked in Get learns that the
// other process is gone.
func NewStreamReceiver(r io.Reader, capacity int) *Queue {
	q := NewQueue(capacity)
	go pump(r, q)
	return q
}

func pump(r io.Reader, q *Queue) {
	defer q.Close()

	dec := cbor.NewDecoder(r)
	for {
		var f frame
		if err := dec.Decode(&f); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				logger.Debug("channel stream ended: %v", err)
			}
			return
		}
		if err := q.PutWait(context.Background(), f.Payload); err != nil {
			return
		}
	}
}
