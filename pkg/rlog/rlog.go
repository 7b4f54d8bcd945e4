// Package rlog sets up rscls's root zerolog logger: stderr by default, an
// opened log file when -o/--log-file is given, and a verbosity level
// derived from repeated -v/-q flags.
package rlog

import (
	"context"
	"io"
	"os"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Level mirrors the original rscls's verbosity ladder (src/verbosity.rs):
// off, error, warn, info, debug, trace, with warn as the default.
type Level int

const (
	LevelOff Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// DefaultLevel is the level rscls starts at absent any -v/-q flags.
const DefaultLevel = LevelWarn

// LevelFromCount turns a default level plus a verbose-count and a
// quiet-count (each -v/-q occurrence) into a resulting Level, clamped to
// [LevelOff, LevelTrace].
func LevelFromCount(verbose, quiet int) Level {
	l := int(DefaultLevel) + verbose - quiet
	if l < int(LevelOff) {
		l = int(LevelOff)
	}
	if l > int(LevelTrace) {
		l = int(LevelTrace)
	}
	return Level(l)
}

func (l Level) zerologLevel() zerolog.Level {
	switch l {
	case LevelOff:
		return zerolog.Disabled
	case LevelError:
		return zerolog.ErrorLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelTrace:
		return zerolog.TraceLevel
	default:
		return zerolog.WarnLevel
	}
}

// Options configures New.
type Options struct {
	Level   Level
	LogFile string // empty means stderr
}

// New builds the root logger and, if LogFile is set, the *os.File backing
// it so the caller can close it on shutdown. The logger is tagged with a
// per-process instance id so rscls's own lines are distinguishable from
// forwarded rust-analyzer ServerLog lines sharing the same sink.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}

	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Logger{}, nil, errors.Errorf("opening log file %q: %w", opts.LogFile, err)
		}
		out = f
		closer = f
	}

	logger := zerolog.New(out).
		Level(opts.Level.zerologLevel()).
		With().
		Timestamp().
		Str("instance", xid.New().String()).
		Logger()

	return logger, closer, nil
}

// WithContext embeds logger in ctx, mirroring the teacher's use of
// context-carried loggers throughout the LSP dispatch path.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// ServerLog writes a line forwarded from rust-analyzer's stderr at info
// level, tagged so it can be told apart from rscls's own log lines.
func ServerLog(logger zerolog.Logger, line string) {
	logger.Info().Str("source", "rust-analyzer").Msg(line)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
