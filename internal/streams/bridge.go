// Package streams bridges pull-based iteration ([iter.Seq2]) and the
// push-based stream abstraction used throughout the codebase
// ([schema.StreamReader]). The adapters are self-contained: they work for any
// element type and make no assumption about where the stream came from.
//
// Backpressure contract: Push never advances the underlying iteration more
// than one element ahead of what the consumer has drained. Cancellation
// contract: closing the returned reader (or breaking out of a Pull loop)
// stops the producer side and releases any resources the iterator holds.
package streams

import (
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/cloudwego/eino/schema"
)

// Push adapts a pull-based sequence into a push-based stream. Each pull from
// the returned reader advances the iteration by one step; the sequence is
// drained at the consumer's pace through an unbuffered pipe, so at most one
// produced value is ever pending. When the iteration completes the stream
// closes cleanly; a mid-iteration error terminates the stream in an errored
// state. Closing the reader before exhaustion stops the iteration early.
func Push[T any](seq iter.Seq2[T, error]) *schema.StreamReader[T] {
	sr, sw := schema.Pipe[T](0)

	go func() {
		defer sw.Close()
		for v, err := range seq {
			if err != nil {
				sw.Send(v, err)
				return
			}
			if closed := sw.Send(v, nil); closed {
				// Consumer cancelled. Returning ends the range loop, which
				// releases any resources the iterator holds.
				return
			}
		}
	}()

	return sr
}

// Pull adapts a push-based stream into a pull-based sequence. Each step of
// the returned sequence blocks in Recv until the next chunk is available or
// the stream ends. Stream errors are yielded to the caller and terminate the
// sequence. Breaking out of the loop closes the stream reader, propagating
// cancellation upstream.
func Pull[T any](sr *schema.StreamReader[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer sr.Close()
		for {
			v, err := sr.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(v, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// FromReader adapts an io.Reader into a stream of byte chunks of at most
// bufSize bytes (default 4096). The reader is drained at the consumer's pace.
// A read error other than io.EOF terminates the stream in an errored state.
func FromReader(r io.Reader, bufSize int) *schema.StreamReader[[]byte] {
	if bufSize <= 0 {
		bufSize = 4096
	}
	sr, sw := schema.Pipe[[]byte](0)

	go func() {
		defer sw.Close()
		for {
			buf := make([]byte, bufSize)
			n, err := r.Read(buf)
			if n > 0 {
				if closed := sw.Send(buf[:n], nil); closed {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				sw.Send(nil, fmt.Errorf("streams: read: %w", err))
				return
			}
		}
	}()

	return sr
}
