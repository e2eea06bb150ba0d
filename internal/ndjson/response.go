package ndjson

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cloudwego/eino/schema"
)

// ContentType is the default media type for ND-JSON response bodies.
const ContentType = "application/x-ndjson; charset=utf-8"

// ResponseOptions carries the response metadata and auxiliary-channel
// configuration for WriteResponse.
type ResponseOptions struct {
	// StatusCode is the HTTP status to send. Zero means 200.
	StatusCode int
	// Header is merged over the default headers; caller values win, including
	// a Content-Type override.
	Header http.Header
	// Map, when set, is applied to each source element immediately before it
	// is wrapped into a chunk envelope. It lets the caller narrow a rich
	// upstream value down to the field meant for transmission.
	Map func(v any) any
	// Aux is the eagerly supplied auxiliary data (see EncodeOptions).
	Aux []any
	// AuxResolver is the deferred auxiliary computation (see EncodeOptions).
	AuxResolver func(ctx context.Context) ([]any, error)
	// Order is the data/chunk interleaving policy. Zero value is OrderDataLast.
	Order Order
}

// WriteResponse streams src as an ND-JSON response body. Headers and status
// are written first (Content-Type defaults to application/x-ndjson), then the
// encoded records are written and flushed one at a time so clients observe
// each envelope as soon as it is produced.
//
// A source failure mid-stream terminates the body abruptly — the truncation
// without a final newline-terminated record is the client-visible failure
// signal — and the error is returned to the handler for logging. Client
// disconnects surface as write errors and cancel the encode.
func WriteResponse(w http.ResponseWriter, r *http.Request, src *schema.StreamReader[any], opts *ResponseOptions) error {
	if opts == nil {
		opts = &ResponseOptions{}
	}

	if opts.Map != nil {
		mapFn := opts.Map
		src = schema.StreamReaderWithConvert(src, func(v any) (any, error) {
			return mapFn(v), nil
		})
	}

	w.Header().Set("Content-Type", ContentType)
	for k, vs := range opts.Header {
		w.Header()[http.CanonicalHeaderKey(k)] = vs
	}
	status := opts.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	flusher, _ := w.(http.Flusher)

	enc := Encode(r.Context(), src, &EncodeOptions{
		Aux:         opts.Aux,
		AuxResolver: opts.AuxResolver,
		Order:       opts.Order,
	})
	defer enc.Close()

	for {
		line, err := enc.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, werr := w.Write(line); werr != nil {
			return fmt.Errorf("ndjson: write response: %w", werr)
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
