// Package editorio is the client endpoint: it frames and unframes the
// editor's stdio stream, mirroring the original rscls's src/client.rs
// (Client::stdio spawning redirect_stdin/redirect_stdout threads).
package editorio

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/rscls/pkg/bus"
	"github.com/walteh/rscls/pkg/codec"
	"github.com/walteh/rscls/pkg/message"
)

// Endpoint reads framed JSON-RPC off the editor's stdin and writes framed
// JSON-RPC to its stdout.
type Endpoint struct {
	dec    *codec.Decoder
	enc    *codec.Encoder
	events *bus.Bus
	logger zerolog.Logger
}

func New(stdin io.Reader, stdout io.Writer, events *bus.Bus, logger zerolog.Logger) *Endpoint {
	return &Endpoint{
		dec:    codec.NewDecoder(stdin),
		enc:    codec.NewEncoder(stdout),
		events: events,
		logger: logger.With().Str("endpoint", "editor").Logger(),
	}
}

// ReadLoop decodes frames from the editor until EOF or the `exit`
// notification, pushing each onto the bus as a ClientToServer event.
// Mirrors redirect_stdin's loop, including its early exit on the exit
// notification rather than waiting for the editor to close the pipe.
func (e *Endpoint) ReadLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		body, err := e.dec.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) {
				e.logger.Debug().Msg("editor closed stdin")
				return nil
			}
			return errors.Errorf("decoding frame from editor: %w", err)
		}

		msg, err := message.Decode(body)
		if err != nil {
			e.logger.Warn().Err(err).Msg("dropping malformed message from editor")
			continue
		}

		e.events.SendClientToServer(msg)

		if message.IsExit(msg) {
			return nil
		}
	}
}

// WriteLoop drains outgoing, framing and writing each message to the
// editor's stdout, until outgoing is closed or ctx is canceled.
func (e *Endpoint) WriteLoop(ctx context.Context, outgoing <-chan message.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-outgoing:
			if !ok {
				return nil
			}
			body, err := message.Encode(msg)
			if err != nil {
				return errors.Errorf("encoding message for editor: %w", err)
			}
			if err := e.enc.Encode(body); err != nil {
				return errors.Errorf("writing frame to editor: %w", err)
			}
		}
	}
}
