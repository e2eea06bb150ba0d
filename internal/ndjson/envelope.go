// Package ndjson implements the newline-delimited JSON wire protocol used to
// stream answers to clients. A single byte stream multiplexes two sources:
// the primary payload (answer chunks) and an auxiliary, possibly deferred,
// block of data (source documents). Every record on the wire is exactly one
// JSON value followed by a single '\n':
//
//	{"type":"chunk","value":"Qdrant is"}
//	{"type":"chunk","value":" a vector database."}
//	{"type":"data","value":{"source":"docs/qdrant.md","score":0.92}}
//
// Encode and Decode are stateless pairs over [schema.StreamReader]; the
// response streamer in response.go binds Encode to an HTTP response body.
package ndjson

import (
	"errors"
	"fmt"
)

// EnvelopeType discriminates the two wire record kinds. The union is closed:
// decoding rejects any other value.
type EnvelopeType string

const (
	// EnvelopeChunk carries one element of the primary payload stream.
	EnvelopeChunk EnvelopeType = "chunk"
	// EnvelopeData carries one element of the auxiliary data block.
	EnvelopeData EnvelopeType = "data"
)

// Envelope is the wire wrapper for a single record. Value is any
// JSON-serialisable payload; serialisation guarantees the encoded form never
// contains a raw newline other than the record terminator (encoding/json
// escapes newlines inside strings).
type Envelope struct {
	// Type is the record kind: chunk or data.
	Type EnvelopeType `json:"type"`
	// Value is the wrapped payload.
	Value any `json:"value"`
}

// ErrTruncatedFrame is returned by Decode when the byte stream ends with a
// non-empty remainder that is not a parseable JSON value.
var ErrTruncatedFrame = errors.New("ndjson: truncated frame at end of stream")

// FrameError reports a line that could not be decoded: either the JSON parse
// failed or the envelope carried an unknown type. One bad frame is fatal for
// the whole decode — the only framing on this wire is the newline, so
// resynchronising after a corrupt record cannot be done safely.
type FrameError struct {
	// Line is the offending line, truncated for display.
	Line string
	// Err is the underlying parse or validation error.
	Err error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("ndjson: bad frame %q: %v", truncateForDisplay(e.Line), e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// truncateForDisplay caps a line at 120 bytes so error messages stay readable
// when a frame carries a large payload.
func truncateForDisplay(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
