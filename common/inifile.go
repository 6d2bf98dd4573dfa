package common

import (
	"errors"
	"os"
	"path"

	ini "github.com/lars-t-hansen/ini"
)

// Defaults for the daemon and the clients can be kept in $HOME/.sparkalyze so that tokens don't
// have to live in the process environment.  Environment variables win over the ini file.

// MT: Constant after initialization
var (
	p     = ini.NewParser()
	store *ini.Store

	platform        = p.AddSection("platform")
	PlatformBaseURL = platform.AddString("base-url")
	PlatformToken   = platform.AddString("token")
	PlatformLimit   = platform.AddString("limit")
	PlatformRanfor  = platform.AddString("ranfor")

	onprem        = p.AddSection("onprem")
	OnpremEnabled = onprem.AddString("enabled")
	OnpremBaseURL = onprem.AddString("base-url")
	OnpremToken   = onprem.AddString("token")

	databricks      = p.AddSection("databricks")
	DatabricksHost  = databricks.AddString("host")
	DatabricksToken = databricks.AddString("token")

	daemonSection = p.AddSection("daemon")
	DaemonDataDir = daemonSection.AddString("data-dir")
	DaemonDbURI   = daemonSection.AddString("db-uri")
	DaemonWindow  = daemonSection.AddString("match-window-minutes")
)

func init() {
	home := os.Getenv("HOME")
	if home == "" {
		return
	}
	fn := path.Join(path.Clean(home), ".sparkalyze")
	input, err := os.Open(fn)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			Log.Errorf("Error in trying to open %s: %s", fn, err.Error())
		}
		return
	}
	defer input.Close()
	store, err = p.Parse(input)
	if err != nil {
		Log.Errorf("Error in trying to parse %s: %s", fn, err.Error())
		return
	}
}

func HasDefault(f *ini.Field) bool {
	return store != nil && f.Present(store)
}

func ApplyDefault(sp *string, f *ini.Field) bool {
	if *sp != "" || store == nil || !f.Present(store) {
		return false
	}
	*sp = os.ExpandEnv(f.StringVal(store))
	return true
}
