package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/spf13/afero"

	"github.com/tomyedwab/scorecard/config"
	"github.com/tomyedwab/scorecard/jobs"
	logger "github.com/tomyedwab/scorecard/log"
	"github.com/tomyedwab/scorecard/tokens"
	"github.com/tomyedwab/scorecard/webapp"
)

const (
	shutdownTimeout = 10 * time.Second
	pruneInterval   = time.Hour
)

var log = logger.Component("bscweb")

type runCmd struct {
	fs      afero.Fs
	appFile *string
	port    *int
	address *string

	portSet    bool
	addressSet bool
}

func addRun(app *kingpin.Application, fs afero.Fs) {
	c := &runCmd{fs: fs}
	cmd := app.Command("run", "Serve the dashboard described by an application file.")
	c.appFile = cmd.Arg("app-file", "Dashboard application file.").Default("bsc_web.yaml").String()
	c.port = cmd.Flag("server.port", "Port to listen on.").IsSetByUser(&c.portSet).Int()
	c.address = cmd.Flag("server.address", "Address to bind to.").IsSetByUser(&c.addressSet).String()
	cmd.Action(c.Run)
}

// loadConfig reads the application file and applies the command line
// overrides, which win over both the file and the environment.
func (c *runCmd) loadConfig() (*config.Config, error) {
	conf := config.Default()
	if err := config.Load(c.fs, *c.appFile, &conf); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", *c.appFile, err)
	}
	if c.portSet {
		conf.Server.Port = *c.port
	}
	if c.addressSet {
		conf.Server.Address = *c.address
	}
	conf.Resolve()
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", *c.appFile, err)
	}
	return &conf, nil
}

func (c *runCmd) Run(_ *kingpin.ParseContext) error {
	conf, err := c.loadConfig()
	if err != nil {
		return err
	}

	store, err := jobs.OpenStore(conf.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	cache, err := jobs.NewResultCache(conf.Storage.CacheSize)
	if err != nil {
		return err
	}
	runner := jobs.NewRunner(store, cache, nil)

	key, err := tokens.LoadSecretKey(c.fs, conf.Downloads.SecretPath)
	if err != nil {
		return err
	}
	srv, err := webapp.New(conf, runner, tokens.NewIssuer(key, conf.Downloads.TokenTTL), version)
	if err != nil {
		return err
	}
	httpServer := srv.HTTPServer()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go prune(ctx, runner, conf.Storage.Retention)

	errCh := make(chan error, 1)
	go func() {
		log.WithField("address", httpServer.Addr).Info("Serving dashboard")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("dashboard server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("Received signal, initiating graceful shutdown...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error stopping dashboard server")
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Jobs still running at shutdown")
	}
	log.Info("Dashboard stopped")
	return nil
}

// prune deletes jobs older than retention now and every pruneInterval until
// ctx is done.
func prune(ctx context.Context, runner *jobs.Runner, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		n, err := runner.Prune(time.Now().Add(-retention))
		if err != nil {
			log.WithError(err).Warn("Failed to prune old jobs")
		} else if n > 0 {
			log.WithField("jobs", n).Info("Pruned old jobs")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
