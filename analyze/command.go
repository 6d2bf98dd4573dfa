package analyze

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"sparkalyze/command"
	. "sparkalyze/common"
	"sparkalyze/status"
)

type AnalyzeCommand struct {
	command.DevArgs
	command.VerboseArgs
	OutputFile   string
	EventlogFile string
}

var _ command.SetRestArgumentsAPI = (*AnalyzeCommand)(nil)

func (ac *AnalyzeCommand) Summary() []string {
	return []string{
		"Analyze a local Spark event log and write an analysis.json artifact",
		"with stage, task, executor, SQL and tuning metrics.",
	}
}

func (ac *AnalyzeCommand) Add(fs *flag.FlagSet) {
	ac.DevArgs.Add(fs)
	ac.VerboseArgs.Add(fs)
	fs.StringVar(&ac.OutputFile, "output", "",
		"Write the analysis to `filename` instead of analysis.json beside the input")
	fs.StringVar(&ac.OutputFile, "o", "", "Short for -output")
}

func (ac *AnalyzeCommand) SetRestArguments(args []string) {
	if len(args) == 1 {
		ac.EventlogFile = args[0]
	} else if len(args) > 1 {
		ac.EventlogFile = "\x00" // poison, rejected by Validate
	}
}

func (ac *AnalyzeCommand) Validate() error {
	var e1, e2, e3 error
	e1 = ac.DevArgs.Validate()
	e2 = ac.VerboseArgs.Validate()
	switch {
	case ac.EventlogFile == "":
		e3 = errors.New("An event log file is required")
	case ac.EventlogFile == "\x00":
		e3 = errors.New("Exactly one event log file is required")
	default:
		if _, err := os.Stat(ac.EventlogFile); err != nil {
			e3 = fmt.Errorf("File not found: %s", ac.EventlogFile)
		}
	}
	return errors.Join(e1, e2, e3)
}

func (ac *AnalyzeCommand) Run(stdout, stderr io.Writer) error {
	if ac.Verbose {
		Log.LowerLevelTo(status.LogLevelInfo)
	}
	_, err := AnalyzeFile(ac.EventlogFile, ac.OutputFile, stderr)
	return err
}
