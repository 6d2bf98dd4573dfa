package analyze

import (
	"cmp"
	"slices"
	"strconv"

	. "sparkalyze/common"
	"sparkalyze/eventlog"
)

// Job-level overview from job start/end pairs.  SQL-triggered jobs carry the owning execution id
// in their properties, which lets the UI link jobs to queries.
type Job struct {
	JobID             int64   `json:"job_id"`
	SubmissionTime    int64   `json:"submission_time"`
	SubmissionTimeISO *string `json:"submission_time_iso"`
	StageIDs          []int64 `json:"stage_ids"`
	SQLExecutionID    *int64  `json:"sql_execution_id"`
	CompletionTime    *int64  `json:"completion_time,omitempty"`
	CompletionTimeISO *string `json:"completion_time_iso,omitempty"`
	Result            string  `json:"result,omitempty"`
	DurationMS        *int64  `json:"duration_ms,omitempty"`
}

func extractJobResults(events []eventlog.Event) []Job {
	jobs := make(map[int64]*Job)

	for _, ev := range events {
		switch ev.Tag() {
		case eventlog.TagJobStart:
			jobID := ev.Int("Job ID")
			stageIDs := make([]int64, 0)
			for _, si := range ev.List("Stage Infos") {
				stageIDs = append(stageIDs, si.Int("Stage ID"))
			}
			job := &Job{
				JobID:             jobID,
				SubmissionTime:    ev.Int("Submission Time"),
				SubmissionTimeISO: MsToISO(ev.Int("Submission Time")),
				StageIDs:          stageIDs,
			}
			if s, found := ev.StrMap("Properties")["spark.sql.execution.id"]; found {
				if execID, err := strconv.ParseInt(s, 10, 64); err == nil {
					job.SQLExecutionID = &execID
				}
			}
			jobs[jobID] = job

		case eventlog.TagJobEnd:
			job, found := jobs[ev.Int("Job ID")]
			if !found {
				continue
			}
			compTime := ev.Int("Completion Time")
			job.CompletionTime = &compTime
			job.CompletionTimeISO = MsToISO(compTime)
			job.Result = ev.Sub("Job Result").Str("Result")
			if job.Result == "" {
				job.Result = "Unknown"
			}
			if job.SubmissionTime > 0 && compTime > 0 {
				d := compTime - job.SubmissionTime
				job.DurationMS = &d
			}
		}
	}

	result := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		result = append(result, *job)
	}
	slices.SortFunc(result, func(a, b Job) int {
		return cmp.Compare(a.JobID, b.JobID)
	})
	return result
}
