package common

import (
	"time"
)

// Event log timestamps are milliseconds since the epoch, UTC.  Zero and negative values mean
// "absent" throughout the analysis and map to a null in the output.

func MsToISO(ms int64) *string {
	if ms <= 0 {
		return nil
	}
	s := time.UnixMilli(ms).UTC().Format(time.RFC3339)
	return &s
}

func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
