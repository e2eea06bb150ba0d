package ndjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/schema"
)

// Order selects where the auxiliary data block appears relative to the chunk
// envelopes. The block itself is always emitted contiguously.
type Order int

const (
	// OrderDataLast drains the source stream fully, then resolves and emits
	// the auxiliary block, then closes. This is the default: it lets chunk
	// emission begin before a deferred auxiliary computation has resolved.
	OrderDataLast Order = iota
	// OrderDataFirst resolves and emits the auxiliary block before draining
	// the source stream. Useful when clients render sources up front.
	OrderDataFirst
)

// EncodeOptions configures the auxiliary channel of an Encode call.
// Aux supplies the auxiliary values eagerly; AuxResolver supplies them as a
// deferred computation run inside the encoder. Both may be set — resolved
// values follow the eager ones within the block. When neither is set, no
// data envelopes are emitted.
type EncodeOptions struct {
	// Aux is the eagerly supplied auxiliary data.
	Aux []any
	// AuxResolver is the deferred auxiliary computation. The output stream
	// does not close until it has resolved and its values are emitted.
	AuxResolver func(ctx context.Context) ([]any, error)
	// Order is the block placement policy. Zero value is OrderDataLast.
	Order Order
}

// Encode converts a stream of payload values into the ND-JSON byte stream.
// Each source element becomes one chunk envelope; auxiliary values become
// data envelopes placed per opts.Order. Emission order within one call is
// deterministic.
//
// A source or resolver failure terminates the output stream in an errored
// state with no further records. Closing the returned reader cancels the
// encode: the source drain stops and the source stream is closed.
func Encode(ctx context.Context, src *schema.StreamReader[any], opts *EncodeOptions) *schema.StreamReader[[]byte] {
	if opts == nil {
		opts = &EncodeOptions{}
	}
	out, sw := schema.Pipe[[]byte](1)

	go func() {
		defer sw.Close()
		defer src.Close()

		if opts.Order == OrderDataFirst {
			if !emitAux(ctx, sw, opts) {
				return
			}
			emitChunks(sw, src)
			return
		}
		if !emitChunks(sw, src) {
			return
		}
		emitAux(ctx, sw, opts)
	}()

	return out
}

// emitChunks drains src, sending one encoded chunk envelope per element.
// Returns false when emission must stop: the source errored (the error has
// been forwarded) or the consumer cancelled.
func emitChunks(sw *schema.StreamWriter[[]byte], src *schema.StreamReader[any]) bool {
	for {
		v, err := src.Recv()
		if errors.Is(err, io.EOF) {
			return true
		}
		if err != nil {
			sw.Send(nil, fmt.Errorf("ndjson: source stream: %w", err))
			return false
		}
		if !sendEnvelope(sw, Envelope{Type: EnvelopeChunk, Value: v}) {
			return false
		}
	}
}

// emitAux resolves (if deferred) and emits the auxiliary block. Returns false
// when emission must stop.
func emitAux(ctx context.Context, sw *schema.StreamWriter[[]byte], opts *EncodeOptions) bool {
	values := opts.Aux
	if opts.AuxResolver != nil {
		resolved, err := opts.AuxResolver(ctx)
		if err != nil {
			sw.Send(nil, fmt.Errorf("ndjson: auxiliary data: %w", err))
			return false
		}
		merged := make([]any, 0, len(values)+len(resolved))
		merged = append(merged, values...)
		merged = append(merged, resolved...)
		values = merged
	}
	for _, v := range values {
		if !sendEnvelope(sw, Envelope{Type: EnvelopeData, Value: v}) {
			return false
		}
	}
	return true
}

// sendEnvelope serialises env as one newline-terminated record and sends it.
// Returns false when the consumer cancelled or serialisation failed.
func sendEnvelope(sw *schema.StreamWriter[[]byte], env Envelope) bool {
	line, err := json.Marshal(env)
	if err != nil {
		sw.Send(nil, fmt.Errorf("ndjson: marshal %s envelope: %w", env.Type, err))
		return false
	}
	if closed := sw.Send(append(line, '\n'), nil); closed {
		return false
	}
	return true
}
