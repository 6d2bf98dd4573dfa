package analyze

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const endToEndLog = `{"Event":"SparkListenerApplicationStart","App Name":"roundtrip","App ID":"app-1","Timestamp":1000,"User":"tester"}
{"Event":"SparkListenerStageSubmitted","Stage Info":{"Stage ID":0,"Stage Attempt ID":0,"Stage Name":"map at x.scala:1","Number of Tasks":2,"Submission Time":1000}}
{"Event":"SparkListenerTaskEnd","Stage ID":0,"Stage Attempt ID":0,"Task End Reason":{"Reason":"Success"},"Task Info":{"Task ID":1,"Executor ID":"1","Host":"h1","Locality":"PROCESS_LOCAL","Launch Time":1000,"Finish Time":1500},"Task Metrics":{"Executor Run Time":500,"Executor CPU Time":200000000,"JVM GC Time":50}}
{"Event":"SparkListenerTaskEnd","Stage ID":0,"Stage Attempt ID":0,"Task End Reason":{"Reason":"Success"},"Task Info":{"Task ID":2,"Executor ID":"1","Host":"h1","Locality":"NODE_LOCAL","Launch Time":1100,"Finish Time":1600},"Task Metrics":{"Executor Run Time":500,"Executor CPU Time":250000000,"JVM GC Time":60}}
{"Event":"SparkListenerStageCompleted","Stage Info":{"Stage ID":0,"Stage Attempt ID":0,"Stage Name":"map at x.scala:1","Number of Tasks":2,"Submission Time":1000,"Completion Time":1700}}
{"Event":"SparkListenerApplicationEnd","Timestamp":2000}
`

func TestAnalyzeFileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "eventlog")
	if err := os.WriteFile(logPath, []byte(endToEndLog), 0644); err != nil {
		t.Fatal(err)
	}

	analysis, err := AnalyzeFile(logPath, "", io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if analysis == nil {
		t.Fatal("No analysis produced")
	}
	if analysis.SourceFile != "eventlog" {
		t.Fatalf("Source file: %s", analysis.SourceFile)
	}
	if len(analysis.Stages) != 1 {
		t.Fatalf("Stages: %d", len(analysis.Stages))
	}
	s := analysis.Stages[0]
	if s.DurationMS == nil || *s.DurationMS != 700 {
		t.Fatalf("Duration: %v", s.DurationMS)
	}
	if s.TaskSummary.TotalTasks != 2 {
		t.Fatalf("Total tasks: %+v", s.TaskSummary)
	}
	if s.TaskSummary.GCTimeMS.Total != 110 {
		t.Fatalf("GC total: %v", s.TaskSummary.GCTimeMS.Total)
	}

	data, err := os.ReadFile(filepath.Join(dir, "analysis.json"))
	if err != nil {
		t.Fatal(err)
	}

	// The artifact must survive a generic parse and re-serialize with no field lost.
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatal(err)
	}
	reencoded, err := json.Marshal(generic)
	if err != nil {
		t.Fatal(err)
	}
	var again map[string]any
	if err := json.Unmarshal(reencoded, &again); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(generic, again) {
		t.Fatal("Round trip changed the document")
	}
	for _, key := range []string{
		"analysis_version", "generated_at", "source_file", "metadata", "summary",
		"config_snapshot", "resource_profiles", "tuning_inputs", "executor_timeline",
		"pending_task_timeline", "executor_task_distribution", "stage_task_bins",
		"jobs", "stages", "sql_queries",
	} {
		if _, found := generic[key]; !found {
			t.Fatalf("Missing key %s", key)
		}
	}
	if generic["analysis_version"] != AnalysisVersion {
		t.Fatalf("Version: %v", generic["analysis_version"])
	}
}

func TestAnalyzeFileEmptyInput(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "eventlog")
	if err := os.WriteFile(logPath, []byte("\n# not json\n"), 0644); err != nil {
		t.Fatal(err)
	}
	analysis, err := AnalyzeFile(logPath, "", io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if analysis != nil {
		t.Fatal("Expected no analysis for empty input")
	}
	if _, err := os.Stat(filepath.Join(dir, "analysis.json")); err == nil {
		t.Fatal("No artifact should be written for empty input")
	}
}

func TestAnalyzeFileMissingInput(t *testing.T) {
	_, err := AnalyzeFile(filepath.Join(t.TempDir(), "nope"), "", io.Discard)
	if err == nil {
		t.Fatal("Expected an error for a missing input file")
	}
}
