package assemble

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"sparkalyze/command"
	. "sparkalyze/common"
	"sparkalyze/status"
)

type AssembleCommand struct {
	command.DevArgs
	command.VerboseArgs
	ClusterID string
	Host      string
	Token     string
	OutputDir string
}

func (asc *AssembleCommand) Summary() []string {
	return []string{
		"Download a cluster's Spark event log fragments from DBFS, decompress",
		"and concatenate them oldest-to-newest into a single local eventlog file.",
	}
}

func (asc *AssembleCommand) Add(fs *flag.FlagSet) {
	asc.DevArgs.Add(fs)
	asc.VerboseArgs.Add(fs)
	fs.StringVar(&asc.ClusterID, "cluster", "", "The Databricks `cluster-id` whose logs to fetch")
	fs.StringVar(&asc.Host, "host", "", "Databricks workspace `url` (default from config)")
	fs.StringVar(&asc.Token, "token", "", "Databricks access `token` (default from config)")
	fs.StringVar(&asc.OutputDir, "dir", ".", "Write the assembled eventlog into `directory`")
}

func (asc *AssembleCommand) Validate() error {
	var e1, e2, e3 error
	e1 = asc.DevArgs.Validate()
	e2 = asc.VerboseArgs.Validate()

	cfg := ConfigFromEnvironment()
	if asc.Host == "" {
		asc.Host = cfg.DatabricksHost
	}
	if asc.Token == "" {
		asc.Token = cfg.DatabricksToken
	}

	var errs []error
	if asc.ClusterID == "" {
		errs = append(errs, errors.New("A -cluster argument is required"))
	}
	if asc.Host == "" {
		errs = append(errs, errors.New("A Databricks host is required, use -host or the config file"))
	}
	if asc.Token == "" {
		errs = append(errs, errors.New("A Databricks token is required, use -token or the config file"))
	}
	e3 = errors.Join(errs...)

	return errors.Join(e1, e2, e3)
}

func (asc *AssembleCommand) Run(stdout, stderr io.Writer) error {
	if asc.Verbose {
		Log.LowerLevelTo(status.LogLevelInfo)
	}
	client := NewDbfsClient(asc.Host, asc.Token)
	path, err := Assemble(client, asc.ClusterID, asc.OutputDir)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, path)
	return nil
}
