// Command bscweb is the balanced scorecard dashboard server. Besides serving
// the dashboard it can process workbooks offline and check a running server.
package main

import (
	"fmt"
	"io"
	"os"

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/spf13/afero"
)

var version = "dev"

type versionCmd struct {
	out io.Writer
}

func (v *versionCmd) Print(_ *kingpin.ParseContext) error {
	fmt.Fprintf(v.out, "bscweb %s\n", version)
	return nil
}

func newApp(fs afero.Fs, stdout io.Writer) *kingpin.Application {
	app := kingpin.New("bscweb", "Balanced scorecard KPI dashboard.")
	app.Version(version)
	app.HelpFlag.Short('h')

	addRun(app, fs)
	addProcess(app, fs, stdout)
	addStatus(app, stdout)

	v := &versionCmd{out: stdout}
	app.Command("version", "Print the bscweb version.").Action(v.Print)
	return app
}

func main() {
	app := newApp(afero.NewOsFs(), os.Stdout)
	kingpin.MustParse(app.Parse(os.Args[1:]))
}
