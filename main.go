package main

import (
	"github.com/overageworks/deedwatch/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
