// Command rscls is the rust-script LSP middleware: it spawns
// rust-analyzer, speaks LSP over its own stdio to the editor, and relays
// JSON-RPC traffic between them so a single `.rs` rust-script file looks
// to rust-analyzer like a full Cargo workspace member.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/multierr"

	"github.com/walteh/rscls/pkg/backend"
	"github.com/walteh/rscls/pkg/bus"
	"github.com/walteh/rscls/pkg/editorio"
	"github.com/walteh/rscls/pkg/message"
	"github.com/walteh/rscls/pkg/project"
	"github.com/walteh/rscls/pkg/rlog"
	"github.com/walteh/rscls/pkg/router"
	"github.com/walteh/rscls/pkg/scriptpkg"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func version() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func newRootCommand() *cobra.Command {
	var (
		rustScriptPath   string
		rustAnalyzerPath string
		logFile          string
		verbose          int
		quiet            int
	)

	cmd := &cobra.Command{
		Use:     "rscls",
		Short:   "LSP middleware that makes rust-script files look like Cargo packages to rust-analyzer",
		Version: version(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), runOptions{
				rustScriptPath:   rustScriptPath,
				rustAnalyzerPath: rustAnalyzerPath,
				logFile:          logFile,
				level:            rlog.LevelFromCount(verbose, quiet),
			})
		},
	}

	cmd.Flags().StringVar(&rustScriptPath, "rust-script", "rust-script", "the rust-script executable path")
	cmd.Flags().StringVar(&rustAnalyzerPath, "rust-analyzer", "rust-analyzer", "the rust-analyzer executable path")
	cmd.Flags().StringVarP(&logFile, "log-file", "o", "", "the file to use as the log output instead of stderr")
	cmd.Flags().CountVarP(&verbose, "verbose", "v", "increase log verbosity (repeatable)")
	cmd.Flags().CountVarP(&quiet, "quiet", "q", "decrease log verbosity (repeatable)")

	return cmd
}

type runOptions struct {
	rustScriptPath   string
	rustAnalyzerPath string
	logFile          string
	level            rlog.Level
}

func run(ctx context.Context, opts runOptions) error {
	logger, closer, err := rlog.New(rlog.Options{Level: opts.level, LogFile: opts.logFile})
	if err != nil {
		return errors.Errorf("setting up logging: %w", err)
	}
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = rlog.WithContext(ctx, logger)

	events := bus.New()

	rustAnalyzer, err := backend.Spawn(ctx, opts.rustAnalyzerPath, events, logger)
	if err != nil {
		return errors.Errorf("failed to spawn rust-analyzer: %w", err)
	}
	defer func() {
		if cerr := rustAnalyzer.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("error shutting down rust-analyzer")
		}
	}()

	editor := editorio.New(os.Stdin, os.Stdout, events, logger)

	runner := scriptpkg.NewExecRunner(opts.rustScriptPath)
	cache := project.New(afero.NewOsFs(), runner, events, logger)

	toServer := make(chan message.Message, 64)
	toClient := make(chan message.Message, 64)

	rt := router.New(cache, events, logger, toServer, toClient)

	workers := []func() error{
		func() error { return editor.ReadLoop(ctx) },
		func() error { return editor.WriteLoop(ctx, toClient) },
		func() error { return rustAnalyzer.ReadLoop(ctx) },
		func() error { return rustAnalyzer.WriteLoop(ctx, toServer) },
		func() error { return rustAnalyzer.LogLoop(ctx) },
		func() error {
			err := rt.Run(ctx, events.Events())
			cancel() // a router exit (peer disconnect, bus closed) tears the rest down too.
			return err
		},
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		combined error
	)
	for _, worker := range workers {
		wg.Add(1)
		go func(fn func() error) {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				mu.Lock()
				combined = multierr.Append(combined, err)
				mu.Unlock()
			}
		}(worker)
	}
	wg.Wait()

	return combined
}
