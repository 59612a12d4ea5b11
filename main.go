// The main package for the trendwatch executable.
package main

import (
	"github.com/mediatechlab/trendwatch/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
