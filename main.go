// The main package for the webfrontier executable.
package main

import (
	"github.com/kbryner/webfrontier/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
