package main

import (
	"context"
	"fmt"
	"io"
	"time"

	kingpin "github.com/alecthomas/kingpin/v2"

	"github.com/tomyedwab/scorecard/webapp"
)

type statusCmd struct {
	out     io.Writer
	url     *string
	timeout *time.Duration
}

func addStatus(app *kingpin.Application, stdout io.Writer) {
	c := &statusCmd{out: stdout}
	cmd := app.Command("status", "Check that a dashboard is up.")
	c.url = cmd.Flag("url", "Base URL of the dashboard.").Default("http://localhost:8501").String()
	c.timeout = cmd.Flag("timeout", "Request timeout.").Default("5s").Duration()
	cmd.Action(c.Check)
}

func (c *statusCmd) Check(_ *kingpin.ParseContext) error {
	checker := webapp.NewHealthChecker(*c.timeout)
	status, err := checker.Check(context.Background(), *c.url)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s is %s (%s %s)\n", *c.url, status.Status, status.Title, status.Version)
	return nil
}
