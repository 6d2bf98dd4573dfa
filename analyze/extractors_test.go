package analyze

import (
	"testing"
)

const timelineLog = `{"Event":"SparkListenerExecutorAdded","Timestamp":1000,"Executor ID":"1","Executor Info":{"Host":"worker-1","Total Cores":4,"Resource Profile Id":0}}
{"Event":"SparkListenerExecutorAdded","Timestamp":1200,"Executor ID":"2","Executor Info":{"Host":"worker-2","Total Cores":4}}
{"Event":"SparkListenerBlockManagerAdded","Timestamp":1300,"Block Manager ID":{"Executor ID":"1","Host":"worker-1"},"Maximum Memory":1000,"Maximum Onheap Memory":800,"Maximum Offheap Memory":200}
{"Event":"SparkListenerExecutorRemoved","Timestamp":2000,"Executor ID":"2","Removed Reason":"spot kill"}
{"Event":"SparkListenerBlockManagerRemoved","Timestamp":2100,"Block Manager ID":{"Executor ID":"1","Host":"worker-1"}}
`

func TestExecutorTimeline(t *testing.T) {
	timeline := extractExecutorTimeline(parseLog(t, timelineLog))
	// Block-manager-added events only enrich the add entries, they never appear themselves.
	if len(timeline) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(timeline))
	}
	// The block manager event arrives after the add, the memory block must still be attached.
	add1 := timeline[0]
	if add1.Event != "added" || add1.ExecutorID != "1" {
		t.Fatalf("bad first entry %+v", add1)
	}
	if add1.Memory == nil || add1.Memory.MaxMemory != 1000 || add1.Memory.MaxOffheap != 200 {
		t.Fatalf("memory not attached: %+v", add1.Memory)
	}
	if timeline[1].Memory != nil {
		t.Fatalf("executor 2 has no block manager, got %+v", timeline[1].Memory)
	}
	if timeline[2].Event != "removed" || timeline[2].Reason != "spot kill" {
		t.Fatalf("bad removed entry %+v", timeline[2])
	}
	if timeline[3].Event != "block_manager_removed" || timeline[3].Host != "worker-1" {
		t.Fatalf("bad bm-removed entry %+v", timeline[3])
	}
	for i := 1; i < len(timeline); i++ {
		if timeline[i].Timestamp < timeline[i-1].Timestamp {
			t.Fatalf("timeline not sorted at %d", i)
		}
	}
}

const sqlLog = `{"Event":"org.apache.spark.sql.execution.ui.SparkListenerSQLExecutionStart","executionId":1,"description":"select count(*)","time":1000}
{"Event":"org.apache.spark.sql.execution.ui.SparkListenerSQLExecutionStart","executionId":2,"description":"insert into t","time":1500}
{"Event":"org.apache.spark.sql.execution.ui.SparkListenerSQLExecutionEnd","executionId":1,"time":4000}
`

func TestSQLQueries(t *testing.T) {
	queries := extractSQLQueries(parseLog(t, sqlLog))
	if len(queries) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(queries))
	}
	q1 := queries[0]
	if q1.ExecutionID != 1 || q1.DurationMS == nil || *q1.DurationMS != 3000 || q1.Status != "" {
		t.Fatalf("bad completed query %+v", q1)
	}
	// An unmatched start is retained and marked, never dropped.
	q2 := queries[1]
	if q2.ExecutionID != 2 || q2.Status != "incomplete" {
		t.Fatalf("bad incomplete query %+v", q2)
	}
	if q2.EndTime != nil || q2.DurationMS != nil {
		t.Fatalf("incomplete query must have null end/duration: %+v", q2)
	}
}

const jobLog = `{"Event":"SparkListenerJobStart","Job ID":0,"Submission Time":1000,"Stage Infos":[{"Stage ID":0},{"Stage ID":1}],"Properties":{"spark.sql.execution.id":"3"}}
{"Event":"SparkListenerJobEnd","Job ID":0,"Completion Time":5000,"Job Result":{"Result":"JobSucceeded"}}
{"Event":"SparkListenerJobStart","Job ID":1,"Submission Time":2000,"Stage Infos":[{"Stage ID":2}]}
`

func TestJobResults(t *testing.T) {
	jobs := extractJobResults(parseLog(t, jobLog))
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	j0 := jobs[0]
	if j0.SQLExecutionID == nil || *j0.SQLExecutionID != 3 {
		t.Fatalf("bad sql execution id %v", j0.SQLExecutionID)
	}
	if len(j0.StageIDs) != 2 || j0.StageIDs[0] != 0 || j0.StageIDs[1] != 1 {
		t.Fatalf("bad stage ids %v", j0.StageIDs)
	}
	if j0.Result != "JobSucceeded" || j0.DurationMS == nil || *j0.DurationMS != 4000 {
		t.Fatalf("bad job end %+v", j0)
	}
	j1 := jobs[1]
	if j1.SQLExecutionID != nil || j1.CompletionTime != nil || j1.Result != "" {
		t.Fatalf("bad unfinished job %+v", j1)
	}
}

const pendingLog = `{"Event":"SparkListenerTaskEnd","Stage ID":0,"Task End Reason":{"Reason":"Success"},"Task Info":{"Launch Time":40,"Finish Time":50}}
{"Event":"SparkListenerStageSubmitted","Stage Info":{"Stage ID":0,"Number of Tasks":2,"Submission Time":100}}
{"Event":"SparkListenerTaskEnd","Stage ID":0,"Task End Reason":{"Reason":"Success"},"Task Info":{"Launch Time":100,"Finish Time":100}}
{"Event":"SparkListenerTaskEnd","Stage ID":0,"Task End Reason":{"Reason":"ExceptionFailure"},"Task Info":{"Launch Time":100,"Finish Time":150}}
`

func TestPendingTaskTimeline(t *testing.T) {
	points := extractPendingTaskTimeline(parseLog(t, pendingLog))
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	// The stray completion at t=50 clamps at zero.
	if points[0].Timestamp != 50 || points[0].Pending != 0 {
		t.Fatalf("counter went negative: %+v", points[0])
	}
	// At t=100 the submission (+2) sorts before the completion (-1).
	if points[1].Timestamp != 100 || points[1].Pending != 2 {
		t.Fatalf("increment did not sort first: %+v", points[1])
	}
	if points[2].Timestamp != 100 || points[2].Pending != 1 {
		t.Fatalf("bad final point %+v", points[2])
	}
	// Failed task ends do not decrement.
}

const distributionLog = `{"Event":"SparkListenerTaskEnd","Stage ID":0,"Task End Reason":{"Reason":"Success"},"Task Info":{"Executor ID":"10","Launch Time":1000,"Finish Time":2000}}
{"Event":"SparkListenerTaskEnd","Stage ID":0,"Task End Reason":{"Reason":"Success"},"Task Info":{"Executor ID":"10","Launch Time":1000,"Finish Time":2000}}
{"Event":"SparkListenerTaskEnd","Stage ID":0,"Task End Reason":{"Reason":"Success"},"Task Info":{"Executor ID":"10","Launch Time":1500,"Finish Time":2000}}
{"Event":"SparkListenerTaskEnd","Stage ID":0,"Task End Reason":{"Reason":"Success"},"Task Info":{"Executor ID":"2","Launch Time":3000,"Finish Time":3000}}
`

func TestExecutorTaskDistribution(t *testing.T) {
	dist := extractExecutorTaskDistribution(parseLog(t, distributionLog))
	if len(dist) != 2 {
		t.Fatalf("expected 2 executors, got %d", len(dist))
	}
	// "2" sorts before "10" under the (length, value) ordering.
	if dist[0].ExecutorID != "2" || dist[1].ExecutorID != "10" {
		t.Fatalf("bad ordering: %s then %s", dist[0].ExecutorID, dist[1].ExecutorID)
	}
	// Zero lifespan counts as one core.
	if dist[0].TasksProcessed != 1 || dist[0].AvgActiveCores != 1 {
		t.Fatalf("bad zero-lifespan load %+v", dist[0])
	}
	// 2500ms of task time over a 1000ms lifespan rounds up to 3 cores.
	if dist[1].TasksProcessed != 3 || dist[1].AvgActiveCores != 3 {
		t.Fatalf("bad load %+v", dist[1])
	}
}

const binsLog = `{"Event":"SparkListenerTaskEnd","Stage ID":0,"Task End Reason":{"Reason":"Success"},"Task Info":{"Launch Time":1000,"Finish Time":1300},"Task Metrics":{"JVM GC Time":30,"Disk Bytes Spilled":100}}
{"Event":"SparkListenerTaskEnd","Stage ID":0,"Task End Reason":{"Reason":"Success"},"Task Info":{"Launch Time":1000,"Finish Time":1100},"Task Metrics":{"JVM GC Time":10}}
{"Event":"SparkListenerTaskEnd","Stage ID":0,"Task End Reason":{"Reason":"Success"},"Task Info":{"Launch Time":1000,"Finish Time":1200},"Task Metrics":{"JVM GC Time":20}}
{"Event":"SparkListenerTaskEnd","Stage ID":5,"Task End Reason":{"Reason":"Success"},"Task Info":{"Launch Time":1000,"Finish Time":1050},"Task Metrics":{}}
`

func TestStageTaskBins(t *testing.T) {
	bins := extractStageTaskBins(parseLog(t, binsLog), 2)
	if bins.LongestStageID == nil || *bins.LongestStageID != 0 {
		t.Fatalf("bad longest stage %v", bins.LongestStageID)
	}
	s0 := bins.Stages["0"]
	if len(s0) != 2 {
		t.Fatalf("expected 2 bins, got %d", len(s0))
	}
	// Tasks sorted ascending by duration: 100, 200 in the first bin, 300 in the second.
	if s0[0].Label != "P1-2" || s0[0].AvgDurationMS != 150 || s0[0].AvgGCMS != 15 {
		t.Fatalf("bad first bin %+v", s0[0])
	}
	if s0[1].Label != "P3-3" || s0[1].AvgDurationMS != 300 || s0[1].AvgSpillBytes != 100 {
		t.Fatalf("bad second bin %+v", s0[1])
	}
	if len(bins.Stages["5"]) != 1 {
		t.Fatalf("missing stage 5 bins")
	}
}

const metadataLog = `{"Event":"SparkListenerApplicationStart","App ID":"app-123","App Name":"etl","User":"svc","Timestamp":1700000000000}
{"Event":"DBCEventLoggingListenerMetadata","Spark Version":"3.5.0"}
`

func TestExtractMetadata(t *testing.T) {
	md := extractMetadata(parseLog(t, metadataLog))
	if md.AppID == nil || *md.AppID != "app-123" {
		t.Fatalf("bad app id %v", md.AppID)
	}
	if md.SparkVersion == nil || *md.SparkVersion != "3.5.0" {
		t.Fatalf("bad spark version %v", md.SparkVersion)
	}
	if md.StartTimeISO == nil {
		t.Fatalf("missing start time iso")
	}
	// Truncated log: everything stays null.
	empty := extractMetadata(nil)
	if empty.AppID != nil || empty.SparkVersion != nil || empty.StartTime != nil {
		t.Fatalf("expected null metadata, got %+v", empty)
	}
}

const configLog = `{"Event":"SparkListenerEnvironmentUpdate","Spark Properties":{"spark.executor.cores":"4","spark.sql.shuffle.partitions":"200","spark.app.name":"etl"}}
{"Event":"SparkListenerEnvironmentUpdate","Spark Properties":{"spark.executor.cores":"8"}}
`

func TestExtractConfigSnapshot(t *testing.T) {
	config := extractConfigSnapshot(parseLog(t, configLog))
	// Later updates win, unknown keys are dropped.
	if config["spark.executor.cores"] != "8" {
		t.Fatalf("bad cores %q", config["spark.executor.cores"])
	}
	if config["spark.sql.shuffle.partitions"] != "200" {
		t.Fatalf("bad partitions %q", config["spark.sql.shuffle.partitions"])
	}
	if _, found := config["spark.app.name"]; found {
		t.Fatalf("non-tunable key not filtered")
	}
}
