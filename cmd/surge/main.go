// Command surge is the CLI entry point; all flag and subcommand wiring
// lives in the cmd package so it stays testable independent of this
// wrapper.
package main

import "github.com/rivermoor/surge/cmd"

func main() {
	cmd.Execute()
}
