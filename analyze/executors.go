package analyze

import (
	"sort"

	. "sparkalyze/common"
	"sparkalyze/eventlog"
)

// Executor lifecycle timeline: added / removed / block_manager_removed entries in chronological
// order.  "added" entries are enriched with the memory limits reported by the executor's block
// manager.  The block-manager event is not guaranteed to precede the executor-added event in the
// stream, so enrichment runs off a lookup table built over the whole pass, not off stream order.

type BlockManagerMemory struct {
	MaxMemory  int64 `json:"max_memory"`
	MaxOnheap  int64 `json:"max_onheap"`
	MaxOffheap int64 `json:"max_offheap"`
}

type TimelineEntry struct {
	Timestamp         int64               `json:"timestamp"`
	TimestampISO      *string             `json:"timestamp_iso"`
	Event             string              `json:"event"`
	ExecutorID        string              `json:"executor_id"`
	Host              string              `json:"host,omitempty"`
	TotalCores        int64               `json:"total_cores,omitempty"`
	ResourceProfileID int64               `json:"resource_profile_id,omitempty"`
	Reason            string              `json:"reason,omitempty"`
	Memory            *BlockManagerMemory `json:"memory,omitempty"`
}

const (
	timelineAdded               = "added"
	timelineRemoved             = "removed"
	timelineBlockManagerRemoved = "block_manager_removed"
)

func extractExecutorTimeline(events []eventlog.Event) []TimelineEntry {
	blockManagerMemory := make(map[string]*BlockManagerMemory)
	for _, ev := range events {
		if ev.Tag() != eventlog.TagBlockManagerAdded {
			continue
		}
		execID := ev.Sub("Block Manager ID").Str("Executor ID")
		blockManagerMemory[execID] = &BlockManagerMemory{
			MaxMemory:  ev.Int("Maximum Memory"),
			MaxOnheap:  ev.Int("Maximum Onheap Memory"),
			MaxOffheap: ev.Int("Maximum Offheap Memory"),
		}
	}

	timeline := make([]TimelineEntry, 0)
	for _, ev := range events {
		switch ev.Tag() {
		case eventlog.TagExecutorAdded:
			execID := ev.Str("Executor ID")
			execInfo := ev.Sub("Executor Info")
			timeline = append(timeline, TimelineEntry{
				Timestamp:         ev.Int("Timestamp"),
				TimestampISO:      MsToISO(ev.Int("Timestamp")),
				Event:             timelineAdded,
				ExecutorID:        execID,
				Host:              execInfo.Str("Host"),
				TotalCores:        execInfo.Int("Total Cores"),
				ResourceProfileID: execInfo.Int("Resource Profile Id"),
				Memory:            blockManagerMemory[execID],
			})
		case eventlog.TagExecutorRemoved:
			timeline = append(timeline, TimelineEntry{
				Timestamp:    ev.Int("Timestamp"),
				TimestampISO: MsToISO(ev.Int("Timestamp")),
				Event:        timelineRemoved,
				ExecutorID:   ev.Str("Executor ID"),
				Reason:       ev.Str("Removed Reason"),
			})
		case eventlog.TagBlockManagerRemoved:
			bmID := ev.Sub("Block Manager ID")
			timeline = append(timeline, TimelineEntry{
				Timestamp:    ev.Int("Timestamp"),
				TimestampISO: MsToISO(ev.Int("Timestamp")),
				Event:        timelineBlockManagerRemoved,
				ExecutorID:   bmID.Str("Executor ID"),
				Host:         bmID.Str("Host"),
			})
		}
	}

	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Timestamp < timeline[j].Timestamp
	})
	return timeline
}
