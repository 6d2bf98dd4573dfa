package analyze

import (
	"math"
	"slices"

	"sparkalyze/eventlog"
)

// Per-executor load for the task distribution chart.  "Average active cores" estimates
// concurrency as total task wall-clock over the executor's observed lifespan, rounded up;
// a zero lifespan (single instantaneous task) counts as one core.
//
// The (id length, id value) ordering is what the consuming chart expects - it puts "2" before
// "10" for numeric executor ids without having to parse them - and must be preserved exactly.
type ExecutorLoad struct {
	ExecutorID     string `json:"executor_id"`
	TasksProcessed int    `json:"tasks_processed"`
	AvgActiveCores int64  `json:"avg_active_cores"`
}

func extractExecutorTaskDistribution(events []eventlog.Event) []ExecutorLoad {
	type span struct {
		launch, finish int64
	}
	executorTasks := make(map[string][]span)

	for _, ev := range events {
		if ev.Tag() != eventlog.TagTaskEnd {
			continue
		}
		if ev.Sub("Task End Reason").Str("Reason") != "Success" {
			continue
		}
		taskInfo := ev.Sub("Task Info")
		launch := taskInfo.Int("Launch Time")
		finish := taskInfo.Int("Finish Time")
		if launch <= 0 || finish <= 0 {
			continue
		}
		execID := taskInfo.Str("Executor ID")
		executorTasks[execID] = append(executorTasks[execID], span{launch, finish})
	}

	execIDs := make([]string, 0, len(executorTasks))
	for id := range executorTasks {
		execIDs = append(execIDs, id)
	}
	slices.SortFunc(execIDs, func(a, b string) int {
		if len(a) != len(b) {
			return len(a) - len(b)
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})

	result := make([]ExecutorLoad, 0, len(execIDs))
	for _, execID := range execIDs {
		tasks := executorTasks[execID]
		var totalCompute int64
		firstLaunch := tasks[0].launch
		lastFinish := tasks[0].finish
		for _, t := range tasks {
			totalCompute += t.finish - t.launch
			firstLaunch = min(firstLaunch, t.launch)
			lastFinish = max(lastFinish, t.finish)
		}
		lifespan := lastFinish - firstLaunch

		avgCores := int64(1)
		if lifespan > 0 {
			avgCores = int64(math.Ceil(float64(totalCompute) / float64(lifespan)))
		}
		result = append(result, ExecutorLoad{
			ExecutorID:     execID,
			TasksProcessed: len(tasks),
			AvgActiveCores: avgCores,
		})
	}
	return result
}
