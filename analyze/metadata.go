package analyze

import (
	. "sparkalyze/common"
	"sparkalyze/eventlog"
)

// Application-level metadata.  Fields stay null if the log never mentions them (truncated logs
// routinely lose the application-start event).
type Metadata struct {
	AppID        *string `json:"app_id"`
	AppName      *string `json:"app_name"`
	SparkVersion *string `json:"spark_version"`
	User         *string `json:"user"`
	StartTime    *int64  `json:"start_time"`
	StartTimeISO *string `json:"start_time_iso"`
}

func extractMetadata(events []eventlog.Event) Metadata {
	var md Metadata
	for _, ev := range events {
		switch ev.Tag() {
		case eventlog.TagApplicationStart:
			md.AppID = strOrNil(ev, "App ID")
			md.AppName = strOrNil(ev, "App Name")
			md.User = strOrNil(ev, "User")
			if ts := ev.Int("Timestamp"); ts > 0 {
				md.StartTime = &ts
				md.StartTimeISO = MsToISO(ts)
			}
		case eventlog.TagLoggingMetadata:
			md.SparkVersion = strOrNil(ev, "Spark Version")
		}
	}
	return md
}

func strOrNil(ev eventlog.Event, key string) *string {
	if s := ev.Str(key); s != "" {
		return &s
	}
	return nil
}
