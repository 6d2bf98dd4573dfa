package analyze

import (
	"cmp"
	"slices"
	"strconv"

	"sparkalyze/eventlog"
	"sparkalyze/util"
)

// Duration-distribution view of each stage: successful tasks sorted by duration and chunked
// into fixed-size bins ("fastest 20 tasks", "next 20", ...).  Bin labels are 1-based inclusive
// rank ranges within the sorted order, not chronological order.
const defaultBinSize = 20

type TaskBin struct {
	Label         string  `json:"label"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	AvgGCMS       float64 `json:"avg_gc_ms"`
	AvgSpillBytes float64 `json:"avg_spill_bytes"`
}

type StageTaskBins struct {
	LongestStageID *int64               `json:"longest_stage_id"`
	Stages         map[string][]TaskBin `json:"stages"`
}

func extractStageTaskBins(events []eventlog.Event, binSize int) StageTaskBins {
	type taskSample struct {
		durationMS int64
		gcMS       int64
		spillBytes int64
	}
	stageTasks := make(map[int64][]taskSample)

	for _, ev := range events {
		if ev.Tag() != eventlog.TagTaskEnd {
			continue
		}
		if ev.Sub("Task End Reason").Str("Reason") != "Success" {
			continue
		}
		if !ev.Has("Stage ID") {
			continue
		}
		stageID := ev.Int("Stage ID")
		taskInfo := ev.Sub("Task Info")
		metrics := ev.Sub("Task Metrics")
		launch := taskInfo.Int("Launch Time")
		finish := taskInfo.Int("Finish Time")
		var duration int64
		if launch > 0 && finish > 0 {
			duration = finish - launch
		}
		stageTasks[stageID] = append(stageTasks[stageID], taskSample{
			durationMS: duration,
			gcMS:       metrics.Int("JVM GC Time"),
			spillBytes: metrics.Int("Disk Bytes Spilled"),
		})
	}

	stageIDs := util.Keys(stageTasks)
	slices.Sort(stageIDs)

	binned := StageTaskBins{Stages: make(map[string][]TaskBin, len(stageIDs))}
	var longestDurationTotal int64

	for _, stageID := range stageIDs {
		tasks := stageTasks[stageID]
		slices.SortStableFunc(tasks, func(a, b taskSample) int {
			return cmp.Compare(a.durationMS, b.durationMS)
		})

		var totalDuration int64
		for _, t := range tasks {
			totalDuration += t.durationMS
		}
		if totalDuration > longestDurationTotal {
			longestDurationTotal = totalDuration
			id := stageID
			binned.LongestStageID = &id
		}

		bins := make([]TaskBin, 0, (len(tasks)+binSize-1)/binSize)
		for i := 0; i < len(tasks); i += binSize {
			chunk := tasks[i:min(i+binSize, len(tasks))]
			var sumDur, sumGC, sumSpill int64
			for _, t := range chunk {
				sumDur += t.durationMS
				sumGC += t.gcMS
				sumSpill += t.spillBytes
			}
			n := float64(len(chunk))
			bins = append(bins, TaskBin{
				Label:         "P" + strconv.Itoa(i+1) + "-" + strconv.Itoa(i+len(chunk)),
				AvgDurationMS: roundTo(float64(sumDur)/n, 1),
				AvgGCMS:       roundTo(float64(sumGC)/n, 1),
				AvgSpillBytes: roundTo(float64(sumSpill)/n, 1),
			})
		}
		binned.Stages[strconv.FormatInt(stageID, 10)] = bins
	}
	return binned
}
