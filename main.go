// Package main is the entry point for the OpenAgent terminal frontend.
package main

import (
	"openagent/terminal/cmd"
)

func main() {
	cmd.Execute()
}
