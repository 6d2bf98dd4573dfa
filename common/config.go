package common

import (
	"os"
	"strconv"

	ini "github.com/lars-t-hansen/ini"
)

// Runtime configuration for the daemon and the platform clients.  Values come from the
// environment, falling back to the ini file, falling back to the hardwired defaults here.
// The analyzer core takes no configuration at all.

type Config struct {
	PlatformBaseURL string
	PlatformToken   string
	OnpremEnabled   bool
	OnpremBaseURL   string
	OnpremToken     string
	DatabricksHost  string
	DatabricksToken string

	DefaultLimit       int
	RanforFilter       string
	MatchWindowMinutes int

	// Root directory for the file store (flows, event logs, analyses).
	DataDir string

	// Postgres URI for the relational store; empty selects the file store.
	DbURI string
}

func ConfigFromEnvironment() *Config {
	cfg := &Config{
		PlatformBaseURL: os.Getenv("PLATFORM_API_BASE_URL"),
		PlatformToken:   os.Getenv("PLATFORM_API_TOKEN"),
		OnpremBaseURL:   os.Getenv("ONPREM_API_BASE_URL"),
		OnpremToken:     os.Getenv("ONPREM_API_TOKEN"),
		DatabricksHost:  os.Getenv("DATABRICKS_HOST"),
		DatabricksToken: os.Getenv("DATABRICKS_TOKEN"),
		DataDir:         os.Getenv("SPARKALYZE_DATA_DIR"),
		DbURI:           os.Getenv("SPARKALYZE_DB_URI"),
	}
	ApplyDefault(&cfg.PlatformBaseURL, PlatformBaseURL)
	ApplyDefault(&cfg.PlatformToken, PlatformToken)
	ApplyDefault(&cfg.OnpremBaseURL, OnpremBaseURL)
	ApplyDefault(&cfg.OnpremToken, OnpremToken)
	ApplyDefault(&cfg.DatabricksHost, DatabricksHost)
	ApplyDefault(&cfg.DatabricksToken, DatabricksToken)
	ApplyDefault(&cfg.DataDir, DaemonDataDir)
	ApplyDefault(&cfg.DbURI, DaemonDbURI)

	cfg.OnpremEnabled = boolSetting("ONPREM_ENABLED", OnpremEnabled, true)
	cfg.DefaultLimit = intSetting("DEFAULT_LIMIT", PlatformLimit, 25)
	cfg.MatchWindowMinutes = intSetting("MATCH_WINDOW_MINUTES", DaemonWindow, 10)
	cfg.RanforFilter = os.Getenv("RANFOR_FILTER")
	ApplyDefault(&cfg.RanforFilter, PlatformRanfor)
	if cfg.RanforFilter == "" {
		cfg.RanforFilter = "recipe,plan"
	}
	if cfg.DataDir == "" {
		if home := os.Getenv("HOME"); home != "" {
			cfg.DataDir = home + "/sparkalyze/flows"
		} else {
			cfg.DataDir = "flows"
		}
	}
	return cfg
}

func boolSetting(envName string, f *ini.Field, dflt bool) bool {
	s := os.Getenv(envName)
	ApplyDefault(&s, f)
	switch s {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return dflt
}

func intSetting(envName string, f *ini.Field, dflt int) int {
	s := os.Getenv(envName)
	ApplyDefault(&s, f)
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return dflt
}
