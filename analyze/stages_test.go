package analyze

import (
	"strings"
	"testing"

	"sparkalyze/eventlog"
)

// A small but complete log: one stage with two successful tasks and accumulators, one stage
// retried (two attempts), and one orphan task end whose stage was never submitted.
const stageLog = `{"Event":"SparkListenerStageSubmitted","Stage Info":{"Stage ID":0,"Stage Attempt ID":0,"Stage Name":"count at App.scala:10","Number of Tasks":2,"Submission Time":1000}}
{"Event":"SparkListenerTaskEnd","Stage ID":0,"Stage Attempt ID":0,"Task End Reason":{"Reason":"Success"},"Task Info":{"Task ID":0,"Executor ID":"1","Host":"worker-1","Locality":"PROCESS_LOCAL","Launch Time":1000,"Finish Time":1500},"Task Metrics":{"Executor Run Time":480,"Executor CPU Time":240000000,"JVM GC Time":50,"Shuffle Read Metrics":{"Remote Bytes Read":100,"Local Bytes Read":50,"Total Records Read":10},"Shuffle Write Metrics":{"Shuffle Bytes Written":200,"Shuffle Records Written":5},"Input Metrics":{"Bytes Read":1000,"Records Read":100}}}
{"Event":"SparkListenerTaskEnd","Stage ID":0,"Stage Attempt ID":0,"Task End Reason":{"Reason":"Success"},"Task Info":{"Task ID":1,"Executor ID":"1","Host":"worker-1","Locality":"NODE_LOCAL","Launch Time":1100,"Finish Time":1600},"Task Metrics":{"Executor Run Time":450,"Executor CPU Time":225000000,"JVM GC Time":60,"Shuffle Read Metrics":{"Remote Bytes Read":20,"Local Bytes Read":30},"Output Metrics":{"Bytes Written":10,"Records Written":1}}}
{"Event":"SparkListenerStageCompleted","Stage Info":{"Stage ID":0,"Stage Attempt ID":0,"Completion Time":1700,"Accumulables":[{"Name":"spill size","Value":"123"},{"Name":"cloud storage request count","Value":"7"},{"Name":"cloud storage request duration","Value":"1.5"}]}}
{"Event":"SparkListenerStageSubmitted","Stage Info":{"Stage ID":1,"Stage Attempt ID":0,"Stage Name":"join at App.scala:20","Number of Tasks":0,"Submission Time":2000}}
{"Event":"SparkListenerStageSubmitted","Stage Info":{"Stage ID":1,"Stage Attempt ID":1,"Stage Name":"join at App.scala:20","Number of Tasks":4,"Submission Time":2500}}
{"Event":"SparkListenerTaskEnd","Stage ID":9,"Stage Attempt ID":0,"Task End Reason":{"Reason":"ExceptionFailure"},"Task Info":{"Task ID":7,"Executor ID":"2","Launch Time":3000,"Finish Time":3100,"Failed":true},"Task Metrics":{"Executor Run Time":90}}
`

func parseLog(t *testing.T, log string) []eventlog.Event {
	t.Helper()
	return eventlog.Scan(strings.NewReader(log))
}

func TestExtractStages(t *testing.T) {
	stages := extractStages(parseLog(t, stageLog))
	if len(stages) != 4 {
		t.Fatalf("expected 4 stage aggregates, got %d", len(stages))
	}

	s0 := stages[0]
	if s0.StageID != 0 || s0.StageAttemptID != 0 {
		t.Fatalf("bad ordering, first stage is (%d,%d)", s0.StageID, s0.StageAttemptID)
	}
	if s0.StageName == nil || *s0.StageName != "count at App.scala:10" {
		t.Fatalf("bad stage name %v", s0.StageName)
	}
	if s0.NumTasks == nil || *s0.NumTasks != 2 {
		t.Fatalf("bad num_tasks %v", s0.NumTasks)
	}
	if s0.DurationMS == nil || *s0.DurationMS != 700 {
		t.Fatalf("bad duration %v", s0.DurationMS)
	}
	if s0.SchedulingDelayMS == nil || *s0.SchedulingDelayMS != 0 {
		t.Fatalf("bad scheduling delay %v", s0.SchedulingDelayMS)
	}
	ts := s0.TaskSummary
	if ts.TotalTasks != 2 || ts.FailedTasks != 0 {
		t.Fatalf("bad task counts %+v", ts)
	}
	if ts.GCTimeMS.Total != 110 {
		t.Fatalf("bad gc total %v", ts.GCTimeMS.Total)
	}
	if ts.RunTimeMS.Total != 930 {
		t.Fatalf("bad runtime total %v", ts.RunTimeMS.Total)
	}
	// 465e6 ns / 1e6 = 465 ms of cpu against 930 ms of runtime
	if ts.CPUUtilizationPct != 50 {
		t.Fatalf("bad cpu utilization %v", ts.CPUUtilizationPct)
	}
	if s0.Shuffle.ReadBytes != 200 || s0.Shuffle.RemoteBytes != 120 || s0.Shuffle.WriteBytes != 200 {
		t.Fatalf("bad shuffle totals %+v", s0.Shuffle)
	}
	if s0.IO.InputBytes != 1000 || s0.IO.OutputBytes != 10 {
		t.Fatalf("bad io totals %+v", s0.IO)
	}
	if s0.Locality["PROCESS_LOCAL"] != 1 || s0.Locality["NODE_LOCAL"] != 1 {
		t.Fatalf("bad locality %+v", s0.Locality)
	}

	// Accumulators: integer parse, float parse, and absent-means-zero.
	if v, ok := s0.Spill.SpillSize.(int64); !ok || v != 123 {
		t.Fatalf("bad spill size %v", s0.Spill.SpillSize)
	}
	if v, ok := s0.CloudStorage.RequestCount.(int64); !ok || v != 7 {
		t.Fatalf("bad request count %v", s0.CloudStorage.RequestCount)
	}
	if v, ok := s0.CloudStorage.RequestDurationMS.(float64); !ok || v != 1.5 {
		t.Fatalf("bad request duration %v", s0.CloudStorage.RequestDurationMS)
	}
	if v, ok := s0.Cache.HitsBytes.(int64); !ok || v != 0 {
		t.Fatalf("bad cache hits %v", s0.Cache.HitsBytes)
	}

	// Retried stage: attempts are separate aggregates, a declared-zero-task stage keeps 0.
	if stages[1].StageAttemptID != 0 || stages[2].StageAttemptID != 1 {
		t.Fatalf("attempts not separated: %d then %d", stages[1].StageAttemptID, stages[2].StageAttemptID)
	}
	if stages[1].NumTasks == nil || *stages[1].NumTasks != 0 {
		t.Fatalf("bad zero-task stage %v", stages[1].NumTasks)
	}

	// Orphan stage: tasks but no info, still aggregated.
	s9 := stages[3]
	if s9.StageID != 9 || s9.StageName != nil || s9.NumTasks != nil {
		t.Fatalf("bad orphan stage %+v", s9)
	}
	if s9.TaskSummary.TotalTasks != 1 || s9.TaskSummary.FailedTasks != 1 {
		t.Fatalf("bad orphan task counts %+v", s9.TaskSummary)
	}
	if s9.SchedulingDelayMS != nil {
		t.Fatalf("orphan stage should have null scheduling delay")
	}
}

func TestCoerceAccumulator(t *testing.T) {
	if v := coerceAccumulator("42"); v != int64(42) {
		t.Fatalf("got %v", v)
	}
	if v := coerceAccumulator("4.25"); v != 4.25 {
		t.Fatalf("got %v", v)
	}
	if v := coerceAccumulator("n/a"); v != "n/a" {
		t.Fatalf("got %v", v)
	}
	if v := coerceAccumulator(float64(9)); v != int64(9) {
		t.Fatalf("got %v", v)
	}
	if v := coerceAccumulator(nil); v != int64(0) {
		t.Fatalf("got %v", v)
	}
}
