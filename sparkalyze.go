// `sparkalyze` -- Analyze Spark event logs for tuning diagnostics
//
// See MANUAL.md for a manual, or run `sparkalyze help` for brief help.

package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"

	"sparkalyze/analyze"
	"sparkalyze/assemble"
	. "sparkalyze/command"
	"sparkalyze/daemon"
)

// v0.1.0 - translation from Python
// v0.2.0 - added 'assemble' and 'daemon' verbs

const SparkalyzeVersion = "0.2.0"

func main() {
	err := sparkalyze()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func sparkalyze() error {
	cmd := commandLine()

	if cmd.CpuProfileFile() != "" {
		f, err := os.Create(cmd.CpuProfileFile())
		if err != nil {
			return fmt.Errorf("Failed to create profile\n%w", err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	return cmd.Run(os.Stdout, os.Stderr)
}

func commandLine() Command {
	out := flag.CommandLine.Output()

	if len(os.Args) < 2 {
		fmt.Fprintf(out, "Required operation missing, try `sparkalyze help`\n")
		os.Exit(2)
	}

	var cmd Command
	var verb = os.Args[1]
	switch verb {
	case "help", "-h":
		fmt.Fprintf(out, "Usage: %s command [options] [-- eventlog]\n", os.Args[0])
		fmt.Fprintf(out, "Commands:\n")
		fmt.Fprintf(out, "  analyze  - analyze a local event log and write analysis.json\n")
		fmt.Fprintf(out, "  assemble - download and reassemble a cluster's event log fragments\n")
		fmt.Fprintf(out, "  daemon   - run the HTTP API server\n")
		fmt.Fprintf(out, "  version  - print information about the program\n")
		fmt.Fprintf(out, "  help     - print this message\n")
		fmt.Fprintf(out, "Each command accepts -h to further explain options.\n")
		os.Exit(0)
	case "analyze":
		cmd = new(analyze.AnalyzeCommand)
	case "assemble":
		cmd = new(assemble.AssembleCommand)
	case "daemon":
		cmd = new(daemon.DaemonCommand)
	case "version":
		fmt.Printf("sparkalyze version(%s) analysis_version(%s)\n",
			SparkalyzeVersion, analyze.AnalysisVersion)
		os.Exit(0)
	default:
		fmt.Fprintf(out, "Required operation missing, try `sparkalyze help`\n")
		os.Exit(2)
	}

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	cmd.Add(fs)

	fs.Usage = func() {
		restargs := ""
		if _, ok := cmd.(SetRestArgumentsAPI); ok {
			restargs = " [-- eventlog]"
		}
		fmt.Fprintf(
			out,
			"Usage: %s %s [options]%s\n\n",
			os.Args[0],
			os.Args[1],
			restargs,
		)
		for _, s := range cmd.Summary() {
			fmt.Fprintln(out, "  ", s)
		}
		fmt.Fprintln(out, "\nOptions:")
		fs.PrintDefaults()
		if restargs != "" {
			fmt.Fprintf(out, "  eventlog\n    \tInput event log file\n")
		}
	}
	fs.Parse(os.Args[2:])

	rest := fs.Args()
	if len(rest) > 0 {
		if rCmd, ok := cmd.(SetRestArgumentsAPI); ok {
			rCmd.SetRestArguments(rest)
		} else {
			fmt.Fprintf(out, "Rest arguments not accepted by `%s`.\n", verb)
			os.Exit(2)
		}
	}

	err := cmd.Validate()
	if err != nil {
		fmt.Fprintf(out, "Bad arguments, try -h\n%v\n", err.Error())
		os.Exit(2)
	}

	return cmd
}
