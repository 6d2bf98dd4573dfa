package command

import (
	"flag"
	"io"
)

///////////////////////////////////////////////////////////////////////////////////////////////////
//
// Represents a sparkalyze command: analyze, assemble, daemon.

type Command interface {
	// Add all arguments including shared arguments
	Add(fs *flag.FlagSet)

	// One line per line of help text for the verb
	Summary() []string

	// Validate all arguments including shared arguments
	Validate() error

	// Retrieve the -cpuprofile argument, or "" for absent
	CpuProfileFile() string

	// Perform the operation.  Progress and diagnostics go to stderr, results (if the
	// command prints results at all) to stdout.
	Run(stdout, stderr io.Writer) error
}

// Commands that take trailing non-flag arguments (after `--` or after the options).
type SetRestArgumentsAPI interface {
	SetRestArguments(args []string)
}
