// Command launcher starts the scorecard dashboard on localhost:8501 after
// checking that the bscweb server is installed. It takes no arguments.
package main

import (
	"context"
	"os"

	"github.com/tomyedwab/scorecard/launcher"
)

func main() {
	os.Exit(launcher.New(launcher.Config{}).Launch(context.Background()))
}
