package analyze

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	. "sparkalyze/common"
	"sparkalyze/eventlog"
)

// Bump on any change to the shape or semantics of the analysis document.
const AnalysisVersion = "2.1.0"

// Analysis is the full output document.  Field order is the serialization order.
type Analysis struct {
	AnalysisVersion  string            `json:"analysis_version"`
	GeneratedAt      string            `json:"generated_at"`
	SourceFile       string            `json:"source_file"`
	Metadata         Metadata          `json:"metadata"`
	Summary          Summary           `json:"summary"`
	ConfigSnapshot   map[string]string `json:"config_snapshot"`
	ResourceProfiles []ResourceProfile `json:"resource_profiles"`
	TuningInputs     *TuningInputs     `json:"tuning_inputs"`
	ExecutorTimeline []TimelineEntry   `json:"executor_timeline"`
	PendingTimeline  []PendingPoint    `json:"pending_task_timeline"`
	ExecutorTaskDist []ExecutorLoad    `json:"executor_task_distribution"`
	StageTaskBins    StageTaskBins     `json:"stage_task_bins"`
	Jobs             []Job             `json:"jobs"`
	Stages           []Stage           `json:"stages"`
	SQLQueries       []SQLQuery        `json:"sql_queries"`
}

// Analyze runs every extractor over the parsed events and composes the document.
// A nil result (and nil error) means the event sequence was empty.
func Analyze(events []eventlog.Event, sourceFile string, progress io.Writer) *Analysis {
	if len(events) == 0 {
		return nil
	}

	phase := func(what string) {
		fmt.Fprintf(progress, "   %s...\n", what)
	}

	phase("Extracting metadata")
	metadata := extractMetadata(events)

	phase("Extracting config snapshot")
	config := extractConfigSnapshot(events)

	phase("Extracting resource profiles")
	profiles := extractResourceProfiles(events)

	phase("Building executor timeline")
	timeline := extractExecutorTimeline(events)

	phase("Aggregating stage & task metrics")
	stages := extractStages(events)

	phase("Extracting SQL query timings")
	sqlQueries := extractSQLQueries(events)

	phase("Extracting job results")
	jobs := extractJobResults(events)

	phase("Building pending task timeline")
	pending := extractPendingTaskTimeline(events)

	phase("Building executor task distribution")
	distribution := extractExecutorTaskDistribution(events)

	phase("Building stage task bins")
	bins := extractStageTaskBins(events, defaultBinSize)

	phase("Computing overall summary")
	summary := computeOverallSummary(stages, timeline, sqlQueries)

	phase("Computing tuning inputs")
	tuning := computeTuningInputs(profiles, config, timeline)

	return &Analysis{
		AnalysisVersion:  AnalysisVersion,
		GeneratedAt:      NowISO(),
		SourceFile:       filepath.Base(sourceFile),
		Metadata:         metadata,
		Summary:          summary,
		ConfigSnapshot:   config,
		ResourceProfiles: profiles,
		TuningInputs:     tuning,
		ExecutorTimeline: timeline,
		PendingTimeline:  pending,
		ExecutorTaskDist: distribution,
		StageTaskBins:    bins,
		Jobs:             jobs,
		Stages:           stages,
		SQLQueries:       sqlQueries,
	}
}

// AnalyzeFile reads, analyzes and writes the analysis beside the input (or at
// outputPath if given).  Returns the analysis, or nil if the input held no events.
func AnalyzeFile(eventlogPath, outputPath string, progress io.Writer) (*Analysis, error) {
	fmt.Fprintf(progress, "Reading event log: %s\n", eventlogPath)
	events, err := eventlog.ReadFile(eventlogPath)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(progress, "   Found %d events\n", len(events))

	if len(events) == 0 {
		fmt.Fprintf(progress, "   No events found. Aborting.\n")
		return nil, nil
	}

	analysis := Analyze(events, eventlogPath, progress)

	if outputPath == "" {
		abs, err := filepath.Abs(eventlogPath)
		if err != nil {
			return nil, err
		}
		outputPath = filepath.Join(filepath.Dir(abs), "analysis.json")
	}

	fmt.Fprintf(progress, "Writing analysis to: %s\n", outputPath)
	encoded, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("Failed to encode analysis\n%w", err)
	}
	err = os.WriteFile(outputPath, encoded, 0644)
	if err != nil {
		return nil, fmt.Errorf("Failed to write analysis\n%w", err)
	}

	inputInfo, err := os.Stat(eventlogPath)
	if err == nil {
		inputSize := uint64(inputInfo.Size())
		outputSize := uint64(len(encoded))
		ratio := safeDiv(float64(outputSize), float64(inputSize)) * 100
		fmt.Fprintf(progress, "   Input:  %s\n", humanize.Comma(int64(inputSize)))
		fmt.Fprintf(progress, "   Output: %s (%.1f%% of original, %s)\n",
			humanize.Comma(int64(outputSize)), ratio, humanize.Bytes(outputSize))
	} else {
		Log.Warningf("Could not stat %s: %v", eventlogPath, err)
	}
	fmt.Fprintf(progress, "   Done\n")

	return analysis, nil
}
