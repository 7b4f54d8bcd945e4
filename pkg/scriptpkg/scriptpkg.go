// Package scriptpkg shells out to the `rust-script --package <file>`
// collaborator that materializes a single-file script into a throwaway
// Cargo package directory on disk, mirroring the original rscls's
// src/script.rs.
package scriptpkg

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// Runner invokes the external rust-script binary. It is an interface so
// pkg/project can substitute a fake in tests instead of shelling out.
type Runner interface {
	// PackageDir returns the directory rust-script would materialize (or
	// has already materialized) scriptPath into.
	PackageDir(ctx context.Context, scriptPath string) (string, error)
}

// ExecRunner is the real Runner, invoking the configured rust-script binary.
type ExecRunner struct {
	RustScriptPath string
}

func NewExecRunner(rustScriptPath string) *ExecRunner {
	return &ExecRunner{RustScriptPath: rustScriptPath}
}

// PackageDir runs `rust-script --package <scriptPath>` and parses its
// single trimmed line of stdout as the package directory path.
func (r *ExecRunner) PackageDir(ctx context.Context, scriptPath string) (string, error) {
	cmd := exec.CommandContext(ctx, r.RustScriptPath, "--package", scriptPath)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", errors.Errorf("rust-script --package %s: %w (stderr: %s)", scriptPath, err, stderr.String())
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 1 || lines[0] == "" {
		return "", errors.Errorf("rust-script --package %s: expected exactly one line of stdout, got %q", scriptPath, stdout.String())
	}

	return strings.TrimSpace(lines[0]), nil
}
