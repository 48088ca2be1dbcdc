// Package main implements the officedesk command, which serves, inspects and
// connects the shared office document.
//
// Usage:
//
//	officedesk serve                 # poll the document and run the notify hub
//	officedesk status [--format json]
//	officedesk import clients.xlsx
//	officedesk connect --file ~/office.json
//	officedesk connect --forget
//
// Environment variables:
//   - OFFICEDESK_CONFIG: Optional. Config file (default ~/.config/officedesk/config.toml).
package main

import (
	"fmt"
	"io"
	"os"
)

// run executes the command line in args, returning an exit code.
func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(&rootOptions{ConfigPath: os.Getenv("OFFICEDESK_CONFIG")})
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
