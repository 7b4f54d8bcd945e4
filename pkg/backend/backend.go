// Package backend is the server endpoint: it spawns rust-analyzer as a
// child process, pipes framed JSON-RPC to/from its stdin/stdout, and
// relays its stderr as log lines, mirroring the original rscls's
// src/server.rs (Server::spawn with kill_on_drop(true) and its three
// redirect_log/redirect_send/redirect_receive tasks).
package backend

import (
	"bufio"
	"context"
	"io"
	"os/exec"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/rscls/pkg/bus"
	"github.com/walteh/rscls/pkg/codec"
	"github.com/walteh/rscls/pkg/message"
)

// Backend owns the rust-analyzer child process and its framed stdio.
type Backend struct {
	cmd    *exec.Cmd
	dec    *codec.Decoder
	enc    *codec.Encoder
	stderr io.Reader
	events *bus.Bus
	logger zerolog.Logger
}

// Spawn starts rustAnalyzerPath as a child process with piped stdio. The
// process is tied to ctx: canceling ctx kills it, matching kill_on_drop —
// a crashed or orphaned rust-analyzer must never survive rscls exiting,
// since nothing else would ever stop it.
func Spawn(ctx context.Context, rustAnalyzerPath string, events *bus.Bus, logger zerolog.Logger) (*Backend, error) {
	cmd := exec.CommandContext(ctx, rustAnalyzerPath)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Errorf("opening rust-analyzer stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Errorf("opening rust-analyzer stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Errorf("opening rust-analyzer stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Errorf("starting rust-analyzer (%s): %w", rustAnalyzerPath, err)
	}

	return &Backend{
		cmd:    cmd,
		dec:    codec.NewDecoder(stdout),
		enc:    codec.NewEncoder(stdin),
		stderr: stderr,
		events: events,
		logger: logger.With().Str("endpoint", "rust-analyzer").Logger(),
	}, nil
}

// ReadLoop decodes frames from rust-analyzer's stdout until EOF, pushing
// each onto the bus as a ServerToClient event.
func (b *Backend) ReadLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		body, err := b.dec.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) {
				b.logger.Debug().Msg("rust-analyzer closed stdout")
				return nil
			}
			return errors.Errorf("decoding frame from rust-analyzer: %w", err)
		}

		msg, err := message.Decode(body)
		if err != nil {
			b.logger.Warn().Err(err).Msg("dropping malformed message from rust-analyzer")
			continue
		}

		b.events.SendServerToClient(msg)
	}
}

// LogLoop reads rust-analyzer's stderr line by line, pushing each line onto
// the bus as a ServerLog event, mirroring redirect_log.
func (b *Backend) LogLoop(ctx context.Context) error {
	scanner := bufio.NewScanner(b.stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.events.SendServerLog(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return errors.Errorf("reading rust-analyzer stderr: %w", err)
	}
	return nil
}

// WriteLoop drains outgoing, framing and writing each message to
// rust-analyzer's stdin, until outgoing is closed or ctx is canceled.
func (b *Backend) WriteLoop(ctx context.Context, outgoing <-chan message.Message) error {
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
				return errors.Errorf("encoding message for rust-analyzer: %w", err)
			}
			if err := b.enc.Encode(body); err != nil {
				return errors.Errorf("writing frame to rust-analyzer: %w", err)
			}
		}
	}
}

// Close kills rust-analyzer and waits for it to exit. An error from killing
// the process is returned; the error from waiting on it is ignored.
func (b *Backend) Close() error {
	if b.cmd.Process == nil {
		return nil
	}
	killErr := b.cmd.Process.Kill()
	_ = b.cmd.Wait() // Wait's error is expected (killed process) and not diagnostic here.
	if killErr != nil {
		return errors.Errorf("killing rust-analyzer: %w", killErr)
	}
	return nil
}
