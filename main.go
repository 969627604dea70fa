// The main package for the community-crawler executable.
package main

import (
	"github.com/JakeFAU/community-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
