package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

// PathProber looks the dependency up on PATH.
type PathProber struct{}

func (PathProber) Probe(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s not found on PATH", ErrMissingDependency, name)
	}
	return path, nil
}

// ExecRunner runs the server in the foreground with the launcher's stdio.
// The server's own exit status is only logged: once it has started, the
// handoff counts as successful. Cancelling ctx interrupts the server.
type ExecRunner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *logrus.Entry
}

func (r *ExecRunner) Run(ctx context.Context, command Command) error {
	cmd := exec.CommandContext(ctx, command.Path, command.Args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	// Interrupts reach the whole foreground process group. They are caught,
	// not ignored: an ignored disposition would be inherited by the server.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start server command: %w", err)
	}

	err := cmd.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return fmt.Errorf("failed waiting for server command: %w", err)
	}
	if r.Logger != nil {
		r.Logger.WithField("exit_status", cmd.ProcessState.ExitCode()).Debug("Server exited")
	}
	return nil
}
