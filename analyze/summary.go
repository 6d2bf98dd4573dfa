package analyze

import "strconv"

type LongestStage struct {
	StageID    *int64  `json:"stage_id"`
	StageName  *string `json:"stage_name"`
	DurationMS *int64  `json:"duration_ms"`
}

type Summary struct {
	TotalStages            int           `json:"total_stages"`
	TotalTasks             int           `json:"total_tasks"`
	TotalFailedTasks       int           `json:"total_failed_tasks"`
	TotalSQLQueries        int           `json:"total_sql_queries"`
	PeakExecutors          int           `json:"peak_executors"`
	ExecutorsAdded         int           `json:"executors_added"`
	ExecutorsRemoved       int           `json:"executors_removed"`
	TotalInputBytes        int64         `json:"total_input_bytes"`
	TotalOutputBytes       int64         `json:"total_output_bytes"`
	TotalShuffleReadBytes  int64         `json:"total_shuffle_read_bytes"`
	TotalShuffleWriteBytes int64         `json:"total_shuffle_write_bytes"`
	ShuffleToInputRatio    float64       `json:"shuffle_to_input_ratio"`
	TotalSpillMemoryBytes  int64         `json:"total_spill_memory_bytes"`
	TotalSpillDiskBytes    int64         `json:"total_spill_disk_bytes"`
	TotalGCMS              float64       `json:"total_gc_ms"`
	TotalTaskRuntimeMS     float64       `json:"total_task_runtime_ms"`
	GCPctOfTotalRuntime    float64       `json:"gc_pct_of_total_runtime"`
	LongestStage           *LongestStage `json:"longest_stage"`
}

// Overall rollup across all stage attempts, plus the executor scaling envelope.
// Peak concurrency counts only explicit "removed" events as decrements; the
// executors_removed tally also counts block-manager removals.
func computeOverallSummary(stages []Stage, timeline []TimelineEntry, sqlQueries []SQLQuery) Summary {
	s := Summary{
		TotalStages:     len(stages),
		TotalSQLQueries: len(sqlQueries),
	}
	var totalGC, totalRuntime float64
	for i := range stages {
		st := &stages[i]
		s.TotalTasks += st.TaskSummary.TotalTasks
		s.TotalFailedTasks += st.TaskSummary.FailedTasks
		s.TotalInputBytes += st.IO.InputBytes
		s.TotalOutputBytes += st.IO.OutputBytes
		s.TotalShuffleReadBytes += st.Shuffle.ReadBytes
		s.TotalShuffleWriteBytes += st.Shuffle.WriteBytes
		s.TotalSpillMemoryBytes += int64(st.TaskSummary.MemoryBytesSpilled.Total)
		s.TotalSpillDiskBytes += int64(st.TaskSummary.DiskBytesSpilled.Total)
		totalGC += st.TaskSummary.GCTimeMS.Total
		totalRuntime += st.TaskSummary.RunTimeMS.Total
	}
	s.TotalGCMS = totalGC
	s.TotalTaskRuntimeMS = totalRuntime
	s.ShuffleToInputRatio = safeDiv(float64(s.TotalShuffleReadBytes), float64(s.TotalInputBytes))
	s.GCPctOfTotalRuntime = safeDiv(totalGC, totalRuntime) * 100

	current := 0
	for _, e := range timeline {
		switch e.Event {
		case timelineAdded:
			s.ExecutorsAdded++
			current++
			if current > s.PeakExecutors {
				s.PeakExecutors = current
			}
		case timelineRemoved:
			s.ExecutorsRemoved++
			current = max(0, current-1)
		case timelineBlockManagerRemoved:
			s.ExecutorsRemoved++
		}
	}

	var longest *Stage
	for i := range stages {
		if longest == nil || durationOrZero(&stages[i]) > durationOrZero(longest) {
			longest = &stages[i]
		}
	}
	if longest != nil {
		s.LongestStage = &LongestStage{
			StageID:    &longest.StageID,
			StageName:  longest.StageName,
			DurationMS: longest.DurationMS,
		}
	}
	return s
}

func durationOrZero(s *Stage) int64 {
	if s.DurationMS == nil {
		return 0
	}
	return *s.DurationMS
}

type TuningInputs struct {
	ExecutorMemoryMB  int64   `json:"executor_memory_mb"`
	ExecutorOffheapMB int64   `json:"executor_offheap_mb"`
	UnifiedMemoryMB   int64   `json:"unified_memory_mb"`
	UnifiedMemoryGB   float64 `json:"unified_memory_gb"`
	CoresPerExecutor  int64   `json:"cores_per_executor"`
	PerCoreGB         float64 `json:"per_core_gb"`
}

// Memory-per-core figures for sizing recommendations, derived from the first
// resource profile.  Cores come from the first executor-added event when it
// reports them, else spark.executor.cores, else the profile's task cpus.
func computeTuningInputs(profiles []ResourceProfile, config map[string]string, timeline []TimelineEntry) *TuningInputs {
	if len(profiles) == 0 {
		return nil
	}
	rp := profiles[0]
	var execMem, offheap int64
	if rp.ExecutorMemoryMB != nil {
		execMem = *rp.ExecutorMemoryMB
	}
	if rp.ExecutorOffheapMB != nil {
		offheap = *rp.ExecutorOffheapMB
	}
	unifiedMB := execMem + offheap
	unifiedGB := roundTo(float64(unifiedMB)/1024, 2)

	var cores int64
	for _, e := range timeline {
		if e.Event == timelineAdded && e.TotalCores > 0 {
			cores = e.TotalCores
			break
		}
	}
	if cores == 0 {
		if v, err := strconv.ParseInt(config["spark.executor.cores"], 10, 64); err == nil {
			cores = v
		}
	}
	if cores == 0 {
		cores = 1
		if rp.TaskCPUs != nil && int64(*rp.TaskCPUs) > 1 {
			cores = int64(*rp.TaskCPUs)
		}
	}

	var perCoreGB float64
	if cores > 0 {
		perCoreGB = roundTo(unifiedGB/float64(cores), 2)
	}
	return &TuningInputs{
		ExecutorMemoryMB:  execMem,
		ExecutorOffheapMB: offheap,
		UnifiedMemoryMB:   unifiedMB,
		UnifiedMemoryGB:   unifiedGB,
		CoresPerExecutor:  cores,
		PerCoreGB:         perCoreGB,
	}
}
