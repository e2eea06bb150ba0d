package ndjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/schema"
)

// Decode converts a stream of byte chunks back into envelopes. Chunk
// boundaries are arbitrary: a record split across any number of incoming
// chunks is reassembled in an internal buffer owned by this call. Envelopes
// are emitted strictly in byte arrival order.
//
// A line that fails to parse, or that carries an unknown envelope type,
// terminates the stream with a *FrameError. At end of stream a non-empty
// remainder with no trailing newline is decoded as one final record when it
// parses as valid JSON (producers that omit the final terminator are
// tolerated); otherwise the stream ends with ErrTruncatedFrame. Blank lines
// are skipped.
//
// Closing the returned reader cancels the decode and closes src.
func Decode(src *schema.StreamReader[[]byte]) *schema.StreamReader[Envelope] {
	out, sw := schema.Pipe[Envelope](1)

	go func() {
		defer sw.Close()
		defer src.Close()

		var buf bytes.Buffer
		for {
			chunk, err := src.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				sw.Send(Envelope{}, fmt.Errorf("ndjson: byte stream: %w", err))
				return
			}
			buf.Write(chunk)

			for {
				idx := bytes.IndexByte(buf.Bytes(), '\n')
				if idx < 0 {
					break
				}
				line := buf.Next(idx + 1)[:idx]
				if len(bytes.TrimSpace(line)) == 0 {
					continue
				}
				env, perr := parseLine(line)
				if perr != nil {
					sw.Send(Envelope{}, perr)
					return
				}
				if closed := sw.Send(env, nil); closed {
					return
				}
			}
		}

		// End of stream: decide the fate of the trailing remainder.
		rest := bytes.TrimSpace(buf.Bytes())
		if len(rest) == 0 {
			return
		}
		env, perr := parseLine(rest)
		if perr != nil {
			sw.Send(Envelope{}, fmt.Errorf("%w: %v", ErrTruncatedFrame, perr))
			return
		}
		sw.Send(env, nil)
	}()

	return out
}

// parseLine decodes one complete line into an Envelope and validates the
// type tag against the closed union.
func parseLine(line []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(line)

	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Envelope{}, &FrameError{Line: string(trimmed), Err: err}
	}
	switch env.Type {
	case EnvelopeChunk, EnvelopeData:
		return env, nil
	default:
		return Envelope{}, &FrameError{
			Line: string(trimmed),
			Err:  fmt.Errorf("unknown envelope type %q", env.Type),
		}
	}
}
