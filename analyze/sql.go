package analyze

import (
	"cmp"
	"slices"

	. "sparkalyze/common"
	"sparkalyze/eventlog"
)

// SQL execution timings.  A start with no matching end by end of stream is retained and marked
// incomplete with a null duration - never silently dropped; the query may still be running or
// the log may be truncated.
type SQLQuery struct {
	ExecutionID  int64   `json:"execution_id"`
	Description  string  `json:"description"`
	StartTime    int64   `json:"start_time"`
	StartTimeISO *string `json:"start_time_iso"`
	EndTime      *int64  `json:"end_time"`
	EndTimeISO   *string `json:"end_time_iso"`
	DurationMS   *int64  `json:"duration_ms"`
	Status       string  `json:"status,omitempty"`
}

const sqlStatusIncomplete = "incomplete"

func extractSQLQueries(events []eventlog.Event) []SQLQuery {
	starts := make(map[int64]*SQLQuery)
	completed := make(map[int64]bool)
	results := make([]SQLQuery, 0)

	for _, ev := range events {
		switch ev.Tag() {
		case eventlog.TagSQLExecutionStart:
			execID := ev.Int("executionId")
			starts[execID] = &SQLQuery{
				ExecutionID:  execID,
				Description:  ev.Str("description"),
				StartTime:    ev.Int("time"),
				StartTimeISO: MsToISO(ev.Int("time")),
			}
		case eventlog.TagSQLExecutionEnd:
			execID := ev.Int("executionId")
			entry, found := starts[execID]
			if !found {
				continue
			}
			endTime := ev.Int("time")
			entry.EndTime = &endTime
			entry.EndTimeISO = MsToISO(endTime)
			if endTime > 0 && entry.StartTime > 0 {
				d := endTime - entry.StartTime
				entry.DurationMS = &d
			}
			results = append(results, *entry)
			completed[execID] = true
		}
	}

	for execID, entry := range starts {
		if !completed[execID] {
			entry.Status = sqlStatusIncomplete
			results = append(results, *entry)
		}
	}

	slices.SortFunc(results, func(a, b SQLQuery) int {
		return cmp.Compare(a.ExecutionID, b.ExecutionID)
	})
	return results
}
