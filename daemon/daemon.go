// `sparkalyze daemon` - HTTP server for job tracking and event log analysis
//
// This server fronts the job-run cache and the analyzer.  It fetches job runs from the cloud
// platform (and optionally an on-prem install), matches them across environments by creation
// time, and persists the merged pairs per flow.  On request it assembles a run's Spark event
// log from DBFS, analyzes it in-process, and caches the analysis artifact so later requests
// are served from disk.  Databricks run details and cluster events are cached the same way.
//
// The API is JSON over HTTP under /api/, see perform.go for the routes.
//
// Arguments:
//
// -port <port-number>
//
//  This is an optional argument.  It is the port number on which to listen, the default is 5050.
//
// -data-dir <directory>
//
//  This is an optional argument.  It is the root directory for the flow store (flows, event
//  logs, analyses).  The default comes from SPARKALYZE_DATA_DIR or the ini file, falling back
//  to $HOME/sparkalyze/flows.
//
// -db-uri <postgres-uri>
//
//  This is an optional argument.  If provided, flow records and run-details caches are kept in
//  Postgres instead of in per-flow JSON files.  Event logs and analysis artifacts stay on disk
//  under -data-dir either way.
//
// -kafka <broker>
//
//  This is an optional argument.  If provided, the daemon also consumes job-run completion
//  records from the broker's `sparkalyze.runs` topic and pre-warms analyses in the background.
//
// Termination:
//
//  Sending SIGHUP or SIGTERM to `sparkalyze daemon` will shut it down in an orderly manner.
//
//  The daemon is usually run in the background and exit codes are not easily examined, but when
//  the daemon exits it will deliver a non-zero exit code if an error was discovered during
//  startup or shutdown.
//
// Logging:
//
//  The daemon logs to the syslog with the tag defined below ("logTag") when a syslog is
//  reachable, and always to stderr.
//
// Configuration:
//
//  Platform, on-prem and Databricks endpoints and tokens come from the environment with
//  defaults from $HOME/.sparkalyze, see common/config.go.  The /api/config endpoint can update
//  the values for the running process; updates are not written back to the ini file.

package daemon

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/syslog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	. "sparkalyze/command"
	. "sparkalyze/common"
	"sparkalyze/status"
	"sparkalyze/store"
)

const (
	defaultListenPort = 5050
	logTag            = "sparkalyze"
	shutdownTimeout   = 10 * time.Second
)

type DaemonCommand struct {
	DevArgs
	VerboseArgs
	port        uint
	kafkaBroker string
	dataDir     string
	dbURI       string

	// The config can be updated through /api/config while handlers read it concurrently.
	cfgLock sync.RWMutex
	cfg     *Config

	store store.Store
}

func (dc *DaemonCommand) Add(fs *flag.FlagSet) {
	dc.DevArgs.Add(fs)
	dc.VerboseArgs.Add(fs)
	fs.UintVar(&dc.port, "port", defaultListenPort, "Listen for connections on `port`")
	fs.StringVar(&dc.dataDir, "data-dir", "", "Root `directory` for the flow store")
	fs.StringVar(&dc.dbURI, "db-uri", "", "Postgres `uri` for the flow store (default: file store)")
	fs.StringVar(&dc.kafkaBroker, "kafka", "", "Kafka `broker` to consume job-run completions from")
}

func (dc *DaemonCommand) Summary() []string {
	return []string{
		"Run sparkalyze as an HTTP server that fetches and matches job runs,",
		"assembles and analyzes their event logs, and caches the results.",
	}
}

func (dc *DaemonCommand) Validate() error {
	var e1, e2, e3 error
	e1 = dc.DevArgs.Validate()
	e2 = dc.VerboseArgs.Validate()
	if dc.port == 0 || dc.port > 65535 {
		e3 = errors.New("Bad -port value")
	}
	dc.cfg = ConfigFromEnvironment()
	if dc.dataDir != "" {
		dc.cfg.DataDir = dc.dataDir
	}
	if dc.dbURI != "" {
		dc.cfg.DbURI = dc.dbURI
	}
	return errors.Join(e1, e2, e3)
}

func (dc *DaemonCommand) Run(_, _ io.Writer) error {
	if dc.Verbose {
		Log.LowerLevelTo(status.LogLevelInfo)
	}
	if logger, err := syslog.Dial("", "", syslog.LOG_INFO|syslog.LOG_USER, logTag); err == nil {
		Log.SetUnderlying(logger)
	}

	var err error
	if dc.cfg.DbURI != "" {
		dc.store, err = store.OpenPgStore(dc.cfg.DbURI, dc.cfg.DataDir)
	} else {
		dc.store = store.NewFileStore(dc.cfg.DataDir)
	}
	if err != nil {
		return fmt.Errorf("Failed to open flow store\n%w", err)
	}
	defer dc.store.Close()

	if dc.kafkaBroker != "" {
		go runKafka(dc, dc.kafkaBroker)
	}

	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("Sparkalyze", "1.0.0"))
	dc.installHandlers(api)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", dc.port),
		Handler: mux,
	}

	serverFailed := make(chan error, 1)
	go func() {
		Log.Infof("Listening on port %d", dc.port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverFailed <- err
		}
	}()

	// Wait here until we're stopped by SIGHUP (manual) or SIGTERM (from OS during shutdown).
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGHUP, syscall.SIGTERM)
	select {
	case sig := <-stop:
		Log.Infof("Received %v, shutting down", sig)
	case err := <-serverFailed:
		return fmt.Errorf("HTTP server failed to start, or errored out\n%w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// configSnapshot returns a copy so that handlers never see a half-updated config.
func (dc *DaemonCommand) configSnapshot() Config {
	dc.cfgLock.RLock()
	defer dc.cfgLock.RUnlock()
	return *dc.cfg
}
