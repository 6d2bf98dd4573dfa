package analyze

import (
	"sparkalyze/eventlog"
)

// Executor sizing template.  Zero or more may appear in a log; the tuning-input derivation uses
// only the first.
type ResourceProfile struct {
	ProfileID         int64    `json:"profile_id"`
	ExecutorMemoryMB  *int64   `json:"executor_memory_mb"`
	ExecutorOffheapMB *int64   `json:"executor_offheap_mb"`
	TaskCPUs          *float64 `json:"task_cpus"`
}

func extractResourceProfiles(events []eventlog.Event) []ResourceProfile {
	profiles := make([]ResourceProfile, 0)
	for _, ev := range events {
		if ev.Tag() != eventlog.TagResourceProfile {
			continue
		}
		p := ResourceProfile{ProfileID: ev.Int("Resource Profile Id")}
		execReqs := ev.Sub("Executor Resource Requests")
		if mem := execReqs.Sub("memory"); mem != nil {
			amount := mem.Int("Amount")
			p.ExecutorMemoryMB = &amount
		}
		if offheap := execReqs.Sub("offHeap"); offheap != nil {
			amount := offheap.Int("Amount")
			p.ExecutorOffheapMB = &amount
		}
		if cpus := ev.Sub("Task Resource Requests").Sub("cpus"); cpus != nil {
			amount := cpus.Float("Amount")
			p.TaskCPUs = &amount
		}
		profiles = append(profiles, p)
	}
	return profiles
}
