package platform

import (
	"encoding/json"
	"testing"
)

func job(id int64, createdAt string) JobSummary {
	return JobSummary{JobRunID: id, CreatedAt: createdAt}
}

func TestMatchJobs(t *testing.T) {
	aac := []JobSummary{
		job(100, "2026-01-29T19:32:42.000Z"),
		job(101, "2026-01-29T20:00:00.000Z"),
		job(102, ""),
	}
	onprem := []JobSummary{
		job(200, "2026-01-29T19:30:00.000Z"), // 2m42s from aac 100
		job(201, "2026-01-29T19:38:00.000Z"), // 5m18s from aac 100
		job(202, "2026-01-29T23:00:00.000Z"), // out of window for everything
	}

	pairs := MatchJobs(aac, onprem, 10)
	if len(pairs) != 5 {
		t.Fatalf("expected 5 pairs, got %d", len(pairs))
	}

	// aac 100 takes the closest candidate, not the first in the window.
	if !pairs[0].Matched || pairs[0].Onprem.JobRunID != 200 {
		t.Fatalf("bad match for aac 100: %+v", pairs[0])
	}
	// aac 101 is 22 minutes from the nearest remaining on-prem run.
	if pairs[1].Matched || pairs[1].Onprem != nil {
		t.Fatalf("aac 101 must be unmatched: %+v", pairs[1])
	}
	// A run without a timestamp never matches.
	if pairs[2].Matched {
		t.Fatalf("aac 102 has no createdAt, must be unmatched")
	}
	// Unmatched on-prem runs are retained as half-pairs.
	if pairs[3].Aac != nil || pairs[3].Onprem.JobRunID != 201 {
		t.Fatalf("bad leftover %+v", pairs[3])
	}
	if pairs[4].Onprem.JobRunID != 202 {
		t.Fatalf("bad leftover %+v", pairs[4])
	}
}

func TestMatchJobsEachOnpremUsedOnce(t *testing.T) {
	aac := []JobSummary{
		job(1, "2026-01-29T12:00:00.000Z"),
		job(2, "2026-01-29T12:01:00.000Z"),
	}
	onprem := []JobSummary{
		job(9, "2026-01-29T12:00:30.000Z"),
	}
	pairs := MatchJobs(aac, onprem, 10)
	matched := 0
	for _, p := range pairs {
		if p.Matched {
			matched++
		}
	}
	if matched != 1 {
		t.Fatalf("on-prem run matched %d times", matched)
	}
}

func TestPairKey(t *testing.T) {
	a := job(7, "")
	o := job(8, "")
	if k := PairKey(&Pair{Aac: &a, Onprem: &o}); k != "aac_7" {
		t.Fatalf("got %q", k)
	}
	if k := PairKey(&Pair{Onprem: &o}); k != "op_8" {
		t.Fatalf("got %q", k)
	}
	if k := PairKey(&Pair{}); k != "" {
		t.Fatalf("got %q", k)
	}
}

func TestExtractJobSummary(t *testing.T) {
	raw := `{
		"id": 4242,
		"status": "Complete",
		"createdAt": "2026-01-29T19:32:42.000Z",
		"updatedAt": "2026-01-29T19:41:12.000Z",
		"wrangledDataset": {"flow": {"id": 12, "name": "daily etl"}},
		"jobs": {"data": [{
			"executionLanguage": "photon",
			"cpJobId": "{\"databricksWorkspaceId\":\"w1\",\"databricksJobId\":\"943293893227722\"}"
		}]}
	}`
	var entry jobLibraryEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		t.Fatal(err)
	}
	s := extractJobSummary(&entry)
	if s.JobRunID != 4242 || s.Status != "Complete" {
		t.Fatalf("bad summary %+v", s)
	}
	if s.FlowID == nil || *s.FlowID != 12 || *s.FlowName != "daily etl" {
		t.Fatalf("bad flow fields %+v", s)
	}
	// 8.5 minutes between created and updated.
	if s.ExecutionTimeMinutes == nil || *s.ExecutionTimeMinutes != 8.5 {
		t.Fatalf("bad minutes %v", s.ExecutionTimeMinutes)
	}
	if s.DatabricksJobID == nil || *s.DatabricksJobID != "943293893227722" {
		t.Fatalf("bad databricks job id %v", s.DatabricksJobID)
	}

	// Malformed cpJobId is ignored, not an error.
	bad := `{"id": 1, "jobs": {"data": [{"cpJobId": "not json"}]}}`
	entry = jobLibraryEntry{}
	if err := json.Unmarshal([]byte(bad), &entry); err != nil {
		t.Fatal(err)
	}
	if s := extractJobSummary(&entry); s.DatabricksJobID != nil {
		t.Fatalf("expected nil databricks job id, got %v", s.DatabricksJobID)
	}
}
