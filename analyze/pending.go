package analyze

import (
	"sort"

	"sparkalyze/eventlog"
)

// Timeline of tasks queued but not yet finished: +N at stage submission (N = declared task
// count), -1 at each successful task end.  At equal timestamps increments sort before
// decrements, so a stage's tasks are never shown pending before the submission is reflected.
// The counter clamps at zero; anomalous data must not drive it negative.
type PendingPoint struct {
	Timestamp int64 `json:"timestamp"`
	Pending   int64 `json:"pending"`
}

func extractPendingTaskTimeline(events []eventlog.Event) []PendingPoint {
	type delta struct {
		ts int64
		n  int64
	}
	deltas := make([]delta, 0)

	for _, ev := range events {
		switch ev.Tag() {
		case eventlog.TagStageSubmitted:
			si := ev.Sub("Stage Info")
			ts := si.Int("Submission Time")
			numTasks := si.Int("Number of Tasks")
			if ts > 0 && numTasks > 0 {
				deltas = append(deltas, delta{ts, numTasks})
			}
		case eventlog.TagTaskEnd:
			if ev.Sub("Task End Reason").Str("Reason") != "Success" {
				continue
			}
			if finish := ev.Sub("Task Info").Int("Finish Time"); finish > 0 {
				deltas = append(deltas, delta{finish, -1})
			}
		}
	}

	sort.SliceStable(deltas, func(i, j int) bool {
		if deltas[i].ts != deltas[j].ts {
			return deltas[i].ts < deltas[j].ts
		}
		return deltas[i].n > deltas[j].n
	})

	var pending int64
	timeline := make([]PendingPoint, 0, len(deltas))
	for _, d := range deltas {
		pending = max(0, pending+d.n)
		timeline = append(timeline, PendingPoint{d.ts, pending})
	}
	return timeline
}
