package analyze

import (
	"cmp"
	"slices"
	"strconv"

	. "sparkalyze/common"
	"sparkalyze/eventlog"
	"sparkalyze/util"
)

// Per-stage aggregation, the bulk of the analysis.
//
// Stages are keyed by (stage id, attempt id) - retried attempts must not be merged.  Three maps
// are built independently in one pass: stage info from submitted/completed events, accumulator
// values from completed events, and task metric snapshots from task-end events.  An event type
// updates only its own map, so a stage can exist with info but no tasks (never ran) or tasks but
// no info (truncated log); both are aggregated, nothing is dropped.

type stageKey struct {
	stageID   int64
	attemptID int64
}

// One immutable snapshot per ended task, success or not.
type taskSnapshot struct {
	taskID      int64
	executorID  string
	host        string
	locality    string
	speculative bool
	launchTime  int64
	finishTime  int64
	failed      bool
	killed      bool
	endReason   string

	runTime         int64 // ms
	cpuTime         int64 // ns
	deserializeTime int64 // ms
	gcTime          int64 // ms
	peakMemory      int64
	memorySpilled   int64
	diskSpilled     int64
	resultSize      int64

	shuffleReadBytes    int64 // remote + local
	shuffleReadRecords  int64
	shuffleRemoteBytes  int64
	shuffleLocalBytes   int64
	shuffleFetchWait    int64
	shuffleWriteBytes   int64
	shuffleWriteTime    int64 // ns
	shuffleWriteRecords int64

	inputBytes    int64
	inputRecords  int64
	outputBytes   int64
	outputRecords int64
}

type stageMeta struct {
	stageID           int64
	attemptID         int64
	stageName         *string
	numTasks          int64
	submissionTime    int64
	submissionTimeISO *string
	completionTimeISO *string
	durationMS        *int64
}

type TaskSummary struct {
	TotalTasks          int          `json:"total_tasks"`
	FailedTasks         int          `json:"failed_tasks"`
	KilledTasks         int          `json:"killed_tasks"`
	SpeculativeTasks    int          `json:"speculative_tasks"`
	RunTimeMS           ValueSummary `json:"run_time_ms"`
	CPUTimeNS           ValueSummary `json:"cpu_time_ns"`
	GCTimeMS            ValueSummary `json:"gc_time_ms"`
	GCPctOfRuntime      float64      `json:"gc_pct_of_runtime"`
	CPUUtilizationPct   float64      `json:"cpu_utilization_pct"`
	PeakExecutionMemory ValueSummary `json:"peak_execution_memory"`
	MemoryBytesSpilled  ValueSummary `json:"memory_bytes_spilled"`
	DiskBytesSpilled    ValueSummary `json:"disk_bytes_spilled"`
}

type ShuffleTotals struct {
	ReadBytes    int64 `json:"read_bytes"`
	ReadRecords  int64 `json:"read_records"`
	RemoteBytes  int64 `json:"remote_bytes"`
	LocalBytes   int64 `json:"local_bytes"`
	FetchWaitMS  int64 `json:"fetch_wait_ms"`
	WriteBytes   int64 `json:"write_bytes"`
	WriteRecords int64 `json:"write_records"`
	WriteTimeNS  int64 `json:"write_time_ns"`
}

type IOTotals struct {
	InputBytes    int64 `json:"input_bytes"`
	InputRecords  int64 `json:"input_records"`
	OutputBytes   int64 `json:"output_bytes"`
	OutputRecords int64 `json:"output_records"`
}

// Accumulator-derived values keep whatever type the tolerant parse produced (int64, float64, or
// the original string), defaulting to int64(0) when the accumulator is absent.
type CloudStorageTotals struct {
	RequestCount      any `json:"request_count"`
	RequestDurationMS any `json:"request_duration_ms"`
	RequestSizeBytes  any `json:"request_size_bytes"`
	ResponseSizeBytes any `json:"response_size_bytes"`
	RetryCount        any `json:"retry_count"`
	RetryDurationMS   any `json:"retry_duration_ms"`
}

type SpillTotals struct {
	SpillSize      any `json:"spill_size"`
	SpillWriteTime any `json:"spill_write_time"`
}

type CacheTotals struct {
	HitsBytes   any `json:"hits_bytes"`
	MissesBytes any `json:"misses_bytes"`
}

type Stage struct {
	StageID           int64              `json:"stage_id"`
	StageAttemptID    int64              `json:"stage_attempt_id"`
	StageName         *string            `json:"stage_name"`
	NumTasks          *int64             `json:"num_tasks"`
	SubmissionTimeISO *string            `json:"submission_time_iso"`
	CompletionTimeISO *string            `json:"completion_time_iso"`
	DurationMS        *int64             `json:"duration_ms"`
	SchedulingDelayMS *int64             `json:"scheduling_delay_ms"`
	TaskSummary       TaskSummary        `json:"task_summary"`
	Shuffle           ShuffleTotals      `json:"shuffle"`
	IO                IOTotals           `json:"io"`
	CloudStorage      CloudStorageTotals `json:"cloud_storage"`
	Locality          map[string]int     `json:"locality"`
	Spill             SpillTotals        `json:"spill"`
	Cache             CacheTotals        `json:"cache"`
}

func extractStages(events []eventlog.Event) []Stage {
	stageInfo := make(map[stageKey]*stageMeta)
	stageAccums := make(map[stageKey]map[string]any)
	stageTasks := make(map[stageKey][]taskSnapshot)

	for _, ev := range events {
		switch ev.Tag() {
		case eventlog.TagStageSubmitted:
			si := ev.Sub("Stage Info")
			key := stageKey{si.Int("Stage ID"), si.Int("Stage Attempt ID")}
			meta := &stageMeta{
				stageID:        key.stageID,
				attemptID:      key.attemptID,
				stageName:      strOrNil(si, "Stage Name"),
				numTasks:       si.Int("Number of Tasks"),
				submissionTime: si.Int("Submission Time"),
			}
			meta.submissionTimeISO = MsToISO(meta.submissionTime)
			stageInfo[key] = meta

		case eventlog.TagStageCompleted:
			si := ev.Sub("Stage Info")
			key := stageKey{si.Int("Stage ID"), si.Int("Stage Attempt ID")}
			if meta, found := stageInfo[key]; found {
				comp := si.Int("Completion Time")
				meta.completionTimeISO = MsToISO(comp)
				if meta.submissionTime > 0 && comp > 0 {
					d := comp - meta.submissionTime
					meta.durationMS = &d
				}
			}
			accums := make(map[string]any)
			for _, acc := range si.List("Accumulables") {
				accums[acc.Str("Name")] = coerceAccumulator(acc["Value"])
			}
			stageAccums[key] = accums

		case eventlog.TagTaskEnd:
			key := stageKey{ev.Int("Stage ID"), ev.Int("Stage Attempt ID")}
			stageTasks[key] = append(stageTasks[key], taskFromEvent(ev))
		}
	}

	// Union of keys seen anywhere, ascending by (stage id, attempt id).
	keySet := make(map[stageKey]bool)
	for k := range stageInfo {
		keySet[k] = true
	}
	for k := range stageTasks {
		keySet[k] = true
	}
	keys := util.Keys(keySet)
	slices.SortFunc(keys, func(a, b stageKey) int {
		if c := cmp.Compare(a.stageID, b.stageID); c != 0 {
			return c
		}
		return cmp.Compare(a.attemptID, b.attemptID)
	})

	stages := make([]Stage, 0, len(keys))
	for _, key := range keys {
		stages = append(stages, aggregateStage(key, stageInfo[key], stageTasks[key], stageAccums[key]))
	}
	return stages
}

// Accumulator values arrive as strings (or occasionally raw numbers).  Tolerant parse chain:
// integer, then float, then the original value untouched.
func coerceAccumulator(v any) any {
	s, ok := v.(string)
	if !ok {
		switch n := v.(type) {
		case float64:
			if n == float64(int64(n)) {
				return int64(n)
			}
			return n
		case nil:
			return int64(0)
		}
		return v
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func accumOrZero(accums map[string]any, name string) any {
	if v, found := accums[name]; found {
		return v
	}
	return int64(0)
}

func taskFromEvent(ev eventlog.Event) taskSnapshot {
	taskInfo := ev.Sub("Task Info")
	metrics := ev.Sub("Task Metrics")
	shuffleRead := metrics.Sub("Shuffle Read Metrics")
	shuffleWrite := metrics.Sub("Shuffle Write Metrics")
	input := metrics.Sub("Input Metrics")
	output := metrics.Sub("Output Metrics")
	return taskSnapshot{
		taskID:      taskInfo.Int("Task ID"),
		executorID:  taskInfo.Str("Executor ID"),
		host:        taskInfo.Str("Host"),
		locality:    taskInfo.Str("Locality"),
		speculative: taskInfo.Bool("Speculative"),
		launchTime:  taskInfo.Int("Launch Time"),
		finishTime:  taskInfo.Int("Finish Time"),
		failed:      taskInfo.Bool("Failed"),
		killed:      taskInfo.Bool("Killed"),
		endReason:   ev.Sub("Task End Reason").Str("Reason"),

		runTime:         metrics.Int("Executor Run Time"),
		cpuTime:         metrics.Int("Executor CPU Time"),
		deserializeTime: metrics.Int("Executor Deserialize Time"),
		gcTime:          metrics.Int("JVM GC Time"),
		peakMemory:      metrics.Int("Peak Execution Memory"),
		memorySpilled:   metrics.Int("Memory Bytes Spilled"),
		diskSpilled:     metrics.Int("Disk Bytes Spilled"),
		resultSize:      metrics.Int("Result Size"),

		shuffleReadBytes:    shuffleRead.Int("Remote Bytes Read") + shuffleRead.Int("Local Bytes Read"),
		shuffleReadRecords:  shuffleRead.Int("Total Records Read"),
		shuffleRemoteBytes:  shuffleRead.Int("Remote Bytes Read"),
		shuffleLocalBytes:   shuffleRead.Int("Local Bytes Read"),
		shuffleFetchWait:    shuffleRead.Int("Fetch Wait Time"),
		shuffleWriteBytes:   shuffleWrite.Int("Shuffle Bytes Written"),
		shuffleWriteTime:    shuffleWrite.Int("Shuffle Write Time"),
		shuffleWriteRecords: shuffleWrite.Int("Shuffle Records Written"),

		inputBytes:    input.Int("Bytes Read"),
		inputRecords:  input.Int("Records Read"),
		outputBytes:   output.Int("Bytes Written"),
		outputRecords: output.Int("Records Written"),
	}
}

func aggregateStage(key stageKey, meta *stageMeta, tasks []taskSnapshot, accums map[string]any) Stage {
	runTimes := make([]float64, len(tasks))
	cpuTimes := make([]float64, len(tasks))
	gcTimes := make([]float64, len(tasks))
	peakMems := make([]float64, len(tasks))
	memSpills := make([]float64, len(tasks))
	diskSpills := make([]float64, len(tasks))

	var totalRunTime, totalCPUTime, totalGCTime float64
	localityCounts := make(map[string]int)
	var failed, killed, speculative int
	var firstLaunch int64
	var shuffle ShuffleTotals
	var io IOTotals

	for i, t := range tasks {
		runTimes[i] = float64(t.runTime)
		cpuTimes[i] = float64(t.cpuTime)
		gcTimes[i] = float64(t.gcTime)
		peakMems[i] = float64(t.peakMemory)
		memSpills[i] = float64(t.memorySpilled)
		diskSpills[i] = float64(t.diskSpilled)
		totalRunTime += float64(t.runTime)
		totalCPUTime += float64(t.cpuTime)
		totalGCTime += float64(t.gcTime)

		loc := t.locality
		if loc == "" {
			loc = "UNKNOWN"
		}
		localityCounts[loc]++
		if t.failed {
			failed++
		}
		if t.killed {
			killed++
		}
		if t.speculative {
			speculative++
		}
		if t.launchTime > 0 && (firstLaunch == 0 || t.launchTime < firstLaunch) {
			firstLaunch = t.launchTime
		}

		shuffle.ReadBytes += t.shuffleReadBytes
		shuffle.ReadRecords += t.shuffleReadRecords
		shuffle.RemoteBytes += t.shuffleRemoteBytes
		shuffle.LocalBytes += t.shuffleLocalBytes
		shuffle.FetchWaitMS += t.shuffleFetchWait
		shuffle.WriteBytes += t.shuffleWriteBytes
		shuffle.WriteRecords += t.shuffleWriteRecords
		shuffle.WriteTimeNS += t.shuffleWriteTime

		io.InputBytes += t.inputBytes
		io.InputRecords += t.inputRecords
		io.OutputBytes += t.outputBytes
		io.OutputRecords += t.outputRecords
	}

	stage := Stage{
		StageID:        key.stageID,
		StageAttemptID: key.attemptID,
		Shuffle:        shuffle,
		IO:             io,
		Locality:       localityCounts,
	}
	if meta != nil {
		stage.StageName = meta.stageName
		stage.NumTasks = &meta.numTasks
		stage.SubmissionTimeISO = meta.submissionTimeISO
		stage.CompletionTimeISO = meta.completionTimeISO
		stage.DurationMS = meta.durationMS
		// Scheduling delay: stage submission to first task launch.  Null when the stage never
		// ran a task or the log lost the submission time.
		if firstLaunch > 0 && meta.submissionTime > 0 {
			delay := firstLaunch - meta.submissionTime
			stage.SchedulingDelayMS = &delay
		}
	}

	cpuUtilization := float64(0)
	if len(tasks) > 0 {
		// CPU time is nanoseconds, run time milliseconds; scale before the ratio.
		cpuUtilization = safeDiv(totalCPUTime/1e6, totalRunTime) * 100
	}
	stage.TaskSummary = TaskSummary{
		TotalTasks:          len(tasks),
		FailedTasks:         failed,
		KilledTasks:         killed,
		SpeculativeTasks:    speculative,
		RunTimeMS:           summarizeValues(runTimes),
		CPUTimeNS:           summarizeValues(cpuTimes),
		GCTimeMS:            summarizeValues(gcTimes),
		GCPctOfRuntime:      safeDiv(totalGCTime, totalRunTime) * 100,
		CPUUtilizationPct:   cpuUtilization,
		PeakExecutionMemory: summarizeValues(peakMems),
		MemoryBytesSpilled:  summarizeValues(memSpills),
		DiskBytesSpilled:    summarizeValues(diskSpills),
	}

	stage.CloudStorage = CloudStorageTotals{
		RequestCount:      accumOrZero(accums, "cloud storage request count"),
		RequestDurationMS: accumOrZero(accums, "cloud storage request duration"),
		RequestSizeBytes:  accumOrZero(accums, "cloud storage request size"),
		ResponseSizeBytes: accumOrZero(accums, "cloud storage response size"),
		RetryCount:        accumOrZero(accums, "cloud storage retry count"),
		RetryDurationMS:   accumOrZero(accums, "cloud storage retry duration"),
	}
	stage.Spill = SpillTotals{
		SpillSize:      accumOrZero(accums, "spill size"),
		SpillWriteTime: accumOrZero(accums, "spill write time"),
	}
	stage.Cache = CacheTotals{
		HitsBytes:   accumOrZero(accums, "cache hits size"),
		MissesBytes: accumOrZero(accums, "cache misses size"),
	}
	return stage
}
