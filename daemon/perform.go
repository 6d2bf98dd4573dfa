// HTTP API routes.
//
// All routes are JSON under /api/.  Handlers are registered through huma so that inputs are
// validated and the OpenAPI description is served at /openapi.json.  Every handler runs as a
// separate goroutine; the store implementations are thread-safe and the config is read through
// a snapshot.

package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"sparkalyze/analyze"
	"sparkalyze/assemble"
	. "sparkalyze/common"
	"sparkalyze/platform"
	"sparkalyze/store"
)

const (
	platformTimeout = 30 * time.Second
	analyzerTimeout = 120 * time.Second
)

func (dc *DaemonCommand) installHandlers(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "fetch-jobs",
		Method:      http.MethodPost,
		Path:        "/api/jobs",
		Summary:     "Fetch jobs from both environments and return matched pairs",
	}, dc.fetchJobs)
	huma.Register(api, huma.Operation{
		OperationID: "fetch-eventlog",
		Method:      http.MethodPost,
		Path:        "/api/eventlog",
		Summary:     "Assemble a run's Spark event log and analyze it",
	}, dc.fetchEventlog)
	huma.Register(api, huma.Operation{
		OperationID: "get-eventlog-analysis",
		Method:      http.MethodGet,
		Path:        "/api/eventlog/{jobRunId}",
		Summary:     "Return a previously generated analysis for a job run",
	}, dc.getEventlogAnalysis)
	huma.Register(api, huma.Operation{
		OperationID: "fetch-databricks",
		Method:      http.MethodPost,
		Path:        "/api/databricks",
		Summary:     "Fetch Databricks run details and cluster events",
	}, dc.fetchDatabricks)
	huma.Register(api, huma.Operation{
		OperationID: "refresh-databricks",
		Method:      http.MethodPost,
		Path:        "/api/databricks/refresh",
		Summary:     "Clear cached Databricks data and re-fetch",
	}, dc.refreshDatabricks)
	huma.Register(api, huma.Operation{
		OperationID: "list-flows",
		Method:      http.MethodGet,
		Path:        "/api/flows",
		Summary:     "Return saved flows with their cached data",
	}, dc.listFlows)
	huma.Register(api, huma.Operation{
		OperationID: "delete-flow",
		Method:      http.MethodDelete,
		Path:        "/api/flows/{name}",
		Summary:     "Remove a flow and all its data",
	}, dc.deleteFlow)
	huma.Register(api, huma.Operation{
		OperationID: "get-config",
		Method:      http.MethodGet,
		Path:        "/api/config",
		Summary:     "Return current config with masked secrets",
	}, dc.getConfig)
	huma.Register(api, huma.Operation{
		OperationID: "update-config",
		Method:      http.MethodPut,
		Path:        "/api/config",
		Summary:     "Update config values for the running process",
	}, dc.updateConfig)
}

// /api/jobs

type fetchJobsInput struct {
	Body struct {
		FlowName string `json:"flowName"`
		Limit    int    `json:"limit,omitempty"`
	}
}

type fetchJobsOutput struct {
	Body struct {
		FlowName           string                `json:"flowName"`
		Aac                []platform.JobSummary `json:"aac"`
		Onprem             []platform.JobSummary `json:"onprem"`
		Pairs              []platform.Pair       `json:"pairs"`
		MatchWindowMinutes int                   `json:"matchWindowMinutes"`
		Errors             []string              `json:"errors"`
		AacBaseURL         string                `json:"aacBaseUrl"`
		OnpremBaseURL      string                `json:"onpremBaseUrl"`
		OnpremEnabled      bool                  `json:"onpremEnabled"`
		AnalyzedJobs       []string              `json:"analyzedJobs"`
		DbxCachedJobs      []string              `json:"dbxCachedJobs"`
	}
}

// baseHost strips the API suffix so the result can be used for job links in clients.
func baseHost(url string) string {
	return strings.TrimSuffix(strings.TrimRight(url, "/"), "/v4")
}

func (dc *DaemonCommand) fetchJobs(_ context.Context, in *fetchJobsInput) (*fetchJobsOutput, error) {
	cfg := dc.configSnapshot()

	flowName := strings.TrimSpace(in.Body.FlowName)
	if flowName == "" {
		return nil, huma.Error400BadRequest("flowName is required")
	}
	limit := in.Body.Limit
	if limit <= 0 {
		limit = cfg.DefaultLimit
	}

	var aacJobs, onpremJobs []platform.JobSummary
	errs := []string{}

	if cfg.PlatformToken != "" && cfg.PlatformBaseURL != "" {
		client := platform.NewClient(cfg.PlatformBaseURL, cfg.PlatformToken, false, platformTimeout)
		jobs, err := client.GetJobsForFlow(flowName, limit, cfg.RanforFilter)
		if err != nil {
			errs = append(errs, fmt.Sprintf("AAC: %v", err))
		} else {
			aacJobs = jobs
		}
	} else {
		errs = append(errs, "AAC: Missing PLATFORM_API_BASE_URL or PLATFORM_API_TOKEN")
	}

	// The on-prem install typically runs with a self-signed certificate.
	if cfg.OnpremEnabled && cfg.OnpremToken != "" && cfg.OnpremBaseURL != "" {
		client := platform.NewClient(cfg.OnpremBaseURL, cfg.OnpremToken, true, platformTimeout)
		jobs, err := client.GetJobsForFlow(flowName, limit, cfg.RanforFilter)
		if err != nil {
			errs = append(errs, fmt.Sprintf("On-Prem: %v", err))
		} else {
			onpremJobs = jobs
		}
	} else if cfg.OnpremEnabled {
		errs = append(errs, "On-Prem: Missing ONPREM_API_BASE_URL or ONPREM_API_TOKEN")
	}

	newPairs := platform.MatchJobs(aacJobs, onpremJobs, cfg.MatchWindowMinutes)

	var aacBase, onpremBase string
	if cfg.PlatformBaseURL != "" {
		aacBase = baseHost(cfg.PlatformBaseURL)
	}
	if cfg.OnpremBaseURL != "" {
		onpremBase = baseHost(cfg.OnpremBaseURL)
	}
	meta := store.FlowMeta{
		AacBaseURL:         aacBase,
		OnpremBaseURL:      onpremBase,
		OnpremEnabled:      cfg.OnpremEnabled,
		MatchWindowMinutes: cfg.MatchWindowMinutes,
		Errors:             errs,
	}

	merged, err := dc.store.MergeJobs(flowName, newPairs, meta)
	if err != nil {
		return nil, huma.Error500InternalServerError(fmt.Sprintf("Failed to save flow: %v", err))
	}

	analyzed, err := dc.store.ListAnalyzedJobs(flowName)
	if err != nil {
		Log.Warningf("Failed to list analyzed jobs for %s: %v", flowName, err)
	}
	dbxCached, err := dc.store.ListRunDetailsCached(flowName)
	if err != nil {
		Log.Warningf("Failed to list cached run details for %s: %v", flowName, err)
	}

	out := new(fetchJobsOutput)
	out.Body.FlowName = flowName
	out.Body.Aac = aacJobs
	out.Body.Onprem = onpremJobs
	out.Body.Pairs = merged
	out.Body.MatchWindowMinutes = cfg.MatchWindowMinutes
	out.Body.Errors = errs
	out.Body.AacBaseURL = aacBase
	out.Body.OnpremBaseURL = onpremBase
	out.Body.OnpremEnabled = cfg.OnpremEnabled
	out.Body.AnalyzedJobs = analyzed
	out.Body.DbxCachedJobs = dbxCached
	return out, nil
}

// /api/eventlog

type fetchEventlogInput struct {
	Body struct {
		ClusterID string `json:"clusterId"`
		JobRunID  int64  `json:"jobRunId"`
		FlowName  string `json:"flowName"`
	}
}

type analysisOutput struct {
	Body struct {
		Status   string          `json:"status"`
		Cached   bool            `json:"cached"`
		Analysis json.RawMessage `json:"analysis"`
	}
}

func (dc *DaemonCommand) fetchEventlog(_ context.Context, in *fetchEventlogInput) (*analysisOutput, error) {
	cfg := dc.configSnapshot()

	flowName := strings.TrimSpace(in.Body.FlowName)
	switch {
	case in.Body.ClusterID == "":
		return nil, huma.Error400BadRequest("clusterId is required")
	case in.Body.JobRunID == 0:
		return nil, huma.Error400BadRequest("jobRunId is required")
	case flowName == "":
		return nil, huma.Error400BadRequest("flowName is required")
	case cfg.DatabricksHost == "" || cfg.DatabricksToken == "":
		return nil, huma.Error400BadRequest("DATABRICKS_HOST and DATABRICKS_TOKEN must be configured")
	}

	analysis, cached, err := dc.ensureAnalysis(&cfg, flowName, in.Body.JobRunID, in.Body.ClusterID)
	if err != nil {
		return nil, huma.Error500InternalServerError(err.Error())
	}

	out := new(analysisOutput)
	out.Body.Status = "complete"
	out.Body.Cached = cached
	out.Body.Analysis = analysis
	return out, nil
}

// ensureAnalysis returns the cached analysis for the run if it exists, otherwise assembles the
// run's event log from DBFS and analyzes it.  Shared by the /api/eventlog handler and the
// Kafka pre-warmer.
func (dc *DaemonCommand) ensureAnalysis(
	cfg *Config,
	flowName string,
	jobRunID int64,
	clusterID string,
) (analysis json.RawMessage, cached bool, err error) {
	runID := strconv.FormatInt(jobRunID, 10)
	jobDir, err := dc.store.EventlogDir(flowName, runID)
	if err != nil {
		return nil, false, fmt.Errorf("Failed to create artifact directory: %w", err)
	}
	analysisFile := filepath.Join(jobDir, "analysis.json")

	if data, err := os.ReadFile(analysisFile); err == nil {
		return json.RawMessage(data), true, nil
	}

	dbfs := assemble.NewDbfsClient(cfg.DatabricksHost, cfg.DatabricksToken)
	eventlogPath, err := assemble.Assemble(dbfs, clusterID, jobDir)
	if err != nil {
		return nil, false, fmt.Errorf("Event log download failed: %w", err)
	}

	// The analyzer runs in-process but is held to a wall-clock limit so a pathological log
	// cannot wedge the handler.  On timeout the goroutine is abandoned; it holds no locks.
	done := make(chan error, 1)
	go func() {
		_, err := analyze.AnalyzeFile(eventlogPath, analysisFile, io.Discard)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return nil, false, fmt.Errorf("Analyzer failed: %w", err)
		}
	case <-time.After(analyzerTimeout):
		return nil, false, errors.New("Analyzer timed out (120s limit)")
	}

	data, err := os.ReadFile(analysisFile)
	if err != nil {
		return nil, false, errors.New("Analyzer completed but analysis.json was not produced")
	}
	return json.RawMessage(data), false, nil
}

type getEventlogInput struct {
	JobRunID string `path:"jobRunId"`
	FlowName string `query:"flowName"`
}

type getEventlogOutput struct {
	Body struct {
		Status   string          `json:"status"`
		Exists   bool            `json:"exists"`
		Analysis json.RawMessage `json:"analysis"`
	}
}

func (dc *DaemonCommand) getEventlogAnalysis(_ context.Context, in *getEventlogInput) (*getEventlogOutput, error) {
	flowName := strings.TrimSpace(in.FlowName)
	if flowName == "" {
		return nil, huma.Error400BadRequest("flowName is required")
	}
	jobDir, err := dc.store.EventlogDir(flowName, in.JobRunID)
	if err != nil {
		return nil, huma.Error500InternalServerError(err.Error())
	}
	data, err := os.ReadFile(filepath.Join(jobDir, "analysis.json"))
	if err != nil {
		return nil, huma.Error404NotFound("No analysis found for this job run")
	}
	out := new(getEventlogOutput)
	out.Body.Status = "complete"
	out.Body.Exists = true
	out.Body.Analysis = json.RawMessage(data)
	return out, nil
}

// /api/databricks

type databricksInput struct {
	Body struct {
		DatabricksJobID string `json:"databricksJobId"`
		FlowName        string `json:"flowName,omitempty"`
		JobRunID        int64  `json:"jobRunId,omitempty"`
	}
}

type databricksBody struct {
	DatabricksJobID string                  `json:"databricksJobId"`
	DatabricksHost  string                  `json:"databricksHost"`
	RunDetails      *platform.RunDetails    `json:"runDetails"`
	ClusterEvents   []platform.ClusterEvent `json:"clusterEvents"`
	Cached          bool                    `json:"cached"`
}

type databricksOutput struct {
	Body databricksBody
}

func (dc *DaemonCommand) fetchDatabricks(_ context.Context, in *databricksInput) (*databricksOutput, error) {
	return dc.databricksDetails(in, false)
}

func (dc *DaemonCommand) refreshDatabricks(_ context.Context, in *databricksInput) (*databricksOutput, error) {
	return dc.databricksDetails(in, true)
}

func (dc *DaemonCommand) databricksDetails(in *databricksInput, refresh bool) (*databricksOutput, error) {
	cfg := dc.configSnapshot()

	if in.Body.DatabricksJobID == "" {
		return nil, huma.Error400BadRequest("databricksJobId is required")
	}
	flowName := strings.TrimSpace(in.Body.FlowName)
	haveCacheKey := flowName != "" && in.Body.JobRunID != 0
	runID := strconv.FormatInt(in.Body.JobRunID, 10)

	if haveCacheKey {
		if refresh {
			if _, err := dc.store.ClearRunDetails(flowName, runID); err != nil {
				Log.Warningf("Failed to clear cached run details for %s/%s: %v", flowName, runID, err)
			}
		} else if raw, err := dc.store.LoadRunDetails(flowName, runID); err == nil && raw != nil {
			var body databricksBody
			if err := json.Unmarshal(raw, &body); err == nil {
				body.Cached = true
				return &databricksOutput{Body: body}, nil
			}
		}
	}

	if cfg.DatabricksHost == "" || cfg.DatabricksToken == "" {
		return nil, huma.Error400BadRequest("DATABRICKS_HOST and DATABRICKS_TOKEN must be configured")
	}

	dbxRunID, err := strconv.ParseInt(in.Body.DatabricksJobID, 10, 64)
	if err != nil {
		return nil, huma.Error400BadRequest("Bad databricksJobId")
	}

	dbx := platform.NewDatabricksClient(cfg.DatabricksHost, cfg.DatabricksToken)
	details, err := dbx.GetRunDetails(dbxRunID)
	if err != nil {
		return nil, huma.Error500InternalServerError(err.Error())
	}

	// Cluster events are best-effort, a failure is reported inside the details.
	events := []platform.ClusterEvent{}
	if details.ClusterID != nil && *details.ClusterID != "" {
		events, err = dbx.GetClusterEvents(*details.ClusterID)
		if err != nil {
			details.ClusterEventsError = err.Error()
			events = []platform.ClusterEvent{}
		}
	}

	body := databricksBody{
		DatabricksJobID: in.Body.DatabricksJobID,
		DatabricksHost:  cfg.DatabricksHost,
		RunDetails:      details,
		ClusterEvents:   events,
	}

	if haveCacheKey {
		if encoded, err := json.Marshal(&body); err == nil {
			if err := dc.store.SaveRunDetails(flowName, runID, encoded); err != nil {
				Log.Warningf("Failed to cache run details for %s/%s: %v", flowName, runID, err)
			}
		}
	}

	return &databricksOutput{Body: body}, nil
}

// /api/flows

type listFlowsOutput struct {
	Body struct {
		Flows []*store.FlowData `json:"flows"`
	}
}

func (dc *DaemonCommand) listFlows(_ context.Context, _ *struct{}) (*listFlowsOutput, error) {
	summaries, err := dc.store.ListFlows()
	if err != nil {
		return nil, huma.Error500InternalServerError(err.Error())
	}
	flows := []*store.FlowData{}
	for _, s := range summaries {
		data, err := dc.store.LoadFlow(s.Name)
		if err != nil {
			Log.Warningf("Failed to load flow %s: %v", s.Name, err)
			continue
		}
		if data != nil {
			flows = append(flows, data)
		}
	}
	out := new(listFlowsOutput)
	out.Body.Flows = flows
	return out, nil
}

type deleteFlowInput struct {
	Name string `path:"name"`
}

type deleteFlowOutput struct {
	Body struct {
		Success bool `json:"success"`
	}
}

func (dc *DaemonCommand) deleteFlow(_ context.Context, in *deleteFlowInput) (*deleteFlowOutput, error) {
	deleted, err := dc.store.DeleteFlow(in.Name)
	if err != nil {
		return nil, huma.Error500InternalServerError(err.Error())
	}
	out := new(deleteFlowOutput)
	out.Body.Success = deleted
	return out, nil
}

// /api/config

// Keys we allow to be read and written through the config API.
var configurableKeys = []string{
	"PLATFORM_API_BASE_URL",
	"PLATFORM_API_TOKEN",
	"ONPREM_ENABLED",
	"ONPREM_API_BASE_URL",
	"ONPREM_API_TOKEN",
	"DATABRICKS_HOST",
	"DATABRICKS_TOKEN",
	"DEFAULT_LIMIT",
	"RANFOR_FILTER",
	"MATCH_WINDOW_MINUTES",
}

// Keys whose values are masked when sent to the client.
var secretKeys = map[string]bool{
	"PLATFORM_API_TOKEN": true,
	"ONPREM_API_TOKEN":   true,
	"DATABRICKS_TOKEN":   true,
}

// maskValue hides a secret, showing only the last 4 characters.
func maskValue(value string) string {
	r := []rune(value)
	if len(r) <= 4 {
		return "••••"
	}
	return strings.Repeat("•", len(r)-4) + string(r[len(r)-4:])
}

func configGet(cfg *Config, key string) string {
	switch key {
	case "PLATFORM_API_BASE_URL":
		return cfg.PlatformBaseURL
	case "PLATFORM_API_TOKEN":
		return cfg.PlatformToken
	case "ONPREM_ENABLED":
		return strconv.FormatBool(cfg.OnpremEnabled)
	case "ONPREM_API_BASE_URL":
		return cfg.OnpremBaseURL
	case "ONPREM_API_TOKEN":
		return cfg.OnpremToken
	case "DATABRICKS_HOST":
		return cfg.DatabricksHost
	case "DATABRICKS_TOKEN":
		return cfg.DatabricksToken
	case "DEFAULT_LIMIT":
		return strconv.Itoa(cfg.DefaultLimit)
	case "RANFOR_FILTER":
		return cfg.RanforFilter
	case "MATCH_WINDOW_MINUTES":
		return strconv.Itoa(cfg.MatchWindowMinutes)
	default:
		return ""
	}
}

func configSet(cfg *Config, key, value string) bool {
	switch key {
	case "PLATFORM_API_BASE_URL":
		cfg.PlatformBaseURL = value
	case "PLATFORM_API_TOKEN":
		cfg.PlatformToken = value
	case "ONPREM_ENABLED":
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			cfg.OnpremEnabled = true
		default:
			cfg.OnpremEnabled = false
		}
	case "ONPREM_API_BASE_URL":
		cfg.OnpremBaseURL = value
	case "ONPREM_API_TOKEN":
		cfg.OnpremToken = value
	case "DATABRICKS_HOST":
		cfg.DatabricksHost = value
	case "DATABRICKS_TOKEN":
		cfg.DatabricksToken = value
	case "DEFAULT_LIMIT":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return false
		}
		cfg.DefaultLimit = n
	case "RANFOR_FILTER":
		cfg.RanforFilter = value
	case "MATCH_WINDOW_MINUTES":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return false
		}
		cfg.MatchWindowMinutes = n
	default:
		return false
	}
	return true
}

type configValue struct {
	Value  string `json:"value"`
	Masked bool   `json:"masked"`
}

type getConfigOutput struct {
	Body map[string]configValue
}

func (dc *DaemonCommand) getConfig(_ context.Context, _ *struct{}) (*getConfigOutput, error) {
	cfg := dc.configSnapshot()
	body := make(map[string]configValue, len(configurableKeys))
	for _, key := range configurableKeys {
		raw := configGet(&cfg, key)
		if secretKeys[key] {
			body[key] = configValue{Value: maskValue(raw), Masked: true}
		} else {
			body[key] = configValue{Value: raw, Masked: false}
		}
	}
	return &getConfigOutput{Body: body}, nil
}

type updateConfigInput struct {
	Body map[string]any
}

type updateConfigOutput struct {
	Body struct {
		Success bool     `json:"success"`
		Updated []string `json:"updated"`
	}
}

func (dc *DaemonCommand) updateConfig(_ context.Context, in *updateConfigInput) (*updateConfigOutput, error) {
	updated := []string{}
	dc.cfgLock.Lock()
	for _, key := range configurableKeys {
		raw, present := in.Body[key]
		if !present {
			continue
		}
		value := fmt.Sprint(raw)
		// A masked placeholder means the client didn't change the field.
		if strings.Contains(value, "••") {
			continue
		}
		if configSet(dc.cfg, key, value) {
			updated = append(updated, key)
		}
	}
	dc.cfgLock.Unlock()
	sort.Strings(updated)

	out := new(updateConfigOutput)
	out.Body.Success = true
	out.Body.Updated = updated
	return out, nil
}
