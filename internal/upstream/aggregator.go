package upstream

import (
	"bufio"
	"context"
	"io"

	"github.com/brightloop/qgateway/internal/events"
	"github.com/brightloop/qgateway/internal/wire"
)

// StreamAggregator buffers bytes from an upstream response body into
// frames and classifies them into events, per spec §4's "Stream
// aggregator" component. Not safe for concurrent use; one instance per
// request (spec §5).
type StreamAggregator struct {
	decoder *wire.Decoder
}

// NewStreamAggregator returns a ready-to-use StreamAggregator.
func NewStreamAggregator() *StreamAggregator {
	return &StreamAggregator{decoder: wire.NewDecoder()}
}

const readChunkSize = 32 * 1024

// Run reads body until EOF or ctx cancellation, classifying each decoded
// frame and invoking onEvent in order. A client/server cancellation
// aborts the upstream read (spec §5).
func (a *StreamAggregator) Run(ctx context.Context, body io.Reader, onEvent func(events.Event) error) error {
	buf := make([]byte, readChunkSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			frames, err := a.decoder.Feed(buf[:n])
			if err != nil {
				return err
			}
			for _, f := range frames {
				if err := onEvent(events.Classify(f)); err != nil {
					return err
				}
			}
			if a.decoder.Stopped() {
				return nil
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return readErr
		}
	}
}

// RunBuffered is a convenience wrapper for readers that benefit from
// buffered reads (e.g. an http.Response.Body without its own buffering).
func RunBuffered(ctx context.Context, a *StreamAggregator, body io.Reader, onEvent func(events.Event) error) error {
	return a.Run(ctx, bufio.NewReaderSize(body, readChunkSize), onEvent)
}
