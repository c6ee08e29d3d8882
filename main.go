// The main package for the everylot executable.
package main

import (
	"os"

	"github.com/everylotbot/everylot/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library and propagates the
// process exit code so schedulers can distinguish run outcomes.
func main() {
	os.Exit(cmd.Execute())
}
