// Package launcher starts the dashboard server once its executable is known
// to be installed. It performs a single dependency probe, then hands control
// to the server process; it never restarts, monitors or stops that process.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	logger "github.com/tomyedwab/scorecard/log"
)

const (
	// DefaultPort is the TCP port the dashboard server listens on.
	DefaultPort = 8501
	// DefaultAddress is the interface the dashboard server binds to.
	DefaultAddress = "localhost"
	// DefaultAppFile is the dashboard definition passed to the server.
	DefaultAppFile = "bsc_web.yaml"
	// DependencyName is the executable that must be on PATH.
	DependencyName = "bscweb"
	// InstallCommand is printed when the dependency is missing.
	InstallCommand = "go install github.com/tomyedwab/scorecard/cmd/bscweb@latest"

	Banner = "Starting the Balanced Scorecard KPI dashboard..."

	ExitOK                = 0
	ExitMissingDependency = 1
	ExitStartFailure      = 1
)

// ErrMissingDependency is returned by a Prober when the server executable
// cannot be found.
var ErrMissingDependency = errors.New("missing dependency")

// Command is the external process invocation the launcher hands control to.
type Command struct {
	Path string
	Args []string
}

// Prober checks that a dependency is installed and returns its resolved path.
type Prober interface {
	Probe(name string) (string, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(name string) (string, error)

func (f ProberFunc) Probe(name string) (string, error) { return f(name) }

// Runner starts the external server process.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd Command) error

func (f RunnerFunc) Run(ctx context.Context, cmd Command) error { return f(ctx, cmd) }

// Config holds the launcher's collaborators. Nil fields fall back to the
// process defaults (os.Stdout, os.Stderr, PATH lookup, exec).
type Config struct {
	Stdout io.Writer
	Stderr io.Writer
	Prober Prober
	Runner Runner
	Logger *logrus.Entry
}

// Launcher verifies the dashboard server is installed and starts it.
type Launcher struct {
	stdout io.Writer
	stderr io.Writer
	prober Prober
	runner Runner
	logger *logrus.Entry
}

// New creates a Launcher from config.
func New(config Config) *Launcher {
	l := &Launcher{
		stdout: config.Stdout,
		stderr: config.Stderr,
		prober: config.Prober,
		runner: config.Runner,
		logger: config.Logger,
	}
	if l.stdout == nil {
		l.stdout = os.Stdout
	}
	if l.stderr == nil {
		l.stderr = os.Stderr
	}
	if l.prober == nil {
		l.prober = PathProber{}
	}
	if l.logger == nil {
		l.logger = logger.Component("launcher")
	}
	if l.runner == nil {
		l.runner = &ExecRunner{Stdin: os.Stdin, Stdout: l.stdout, Stderr: l.stderr, Logger: l.logger}
	}
	return l
}

// ServerCommand builds the fixed server invocation for the resolved
// executable path.
func ServerCommand(path string) Command {
	return Command{
		Path: path,
		Args: []string{
			"run", DefaultAppFile,
			"--server.port", strconv.Itoa(DefaultPort),
			"--server.address", DefaultAddress,
		},
	}
}

// Launch prints the banner, probes for the server executable and either
// reports the missing dependency or hands control to the server. It returns
// the process exit status.
func (l *Launcher) Launch(ctx context.Context) int {
	fmt.Fprintln(l.stdout, Banner)

	path, err := l.prober.Probe(DependencyName)
	if err != nil {
		l.logger.WithError(err).Debug("Dependency probe failed")
		fmt.Fprintf(l.stderr, "Error: the %s dashboard server is not installed (%v)\n", DependencyName, err)
		fmt.Fprintf(l.stderr, "Install it with: %s\n", InstallCommand)
		return ExitMissingDependency
	}
	l.logger.WithField("path", path).Debug("Dependency found")

	cmd := ServerCommand(path)
	if err := l.runner.Run(ctx, cmd); err != nil {
		fmt.Fprintf(l.stderr, "Error: failed to start %s: %v\n", DependencyName, err)
		return ExitStartFailure
	}
	return ExitOK
}
