// Spark event logs are newline-delimited JSON, one object per line, each carrying an "Event"
// type tag.  There is no fixed schema: the set of event types and their fields varies with the
// Spark version and the installed listeners.  We therefore keep events as generic maps and give
// the extractors tolerant, nil-safe accessors; an extractor pattern-matches on the tags it cares
// about and ignores everything else.

package eventlog

// One parsed record.  Never mutated after parse.
type Event map[string]any

const (
	TagApplicationStart    = "SparkListenerApplicationStart"
	TagLoggingMetadata     = "DBCEventLoggingListenerMetadata"
	TagEnvironmentUpdate   = "SparkListenerEnvironmentUpdate"
	TagResourceProfile     = "SparkListenerResourceProfileAdded"
	TagBlockManagerAdded   = "SparkListenerBlockManagerAdded"
	TagBlockManagerRemoved = "SparkListenerBlockManagerRemoved"
	TagExecutorAdded       = "SparkListenerExecutorAdded"
	TagExecutorRemoved     = "SparkListenerExecutorRemoved"
	TagStageSubmitted      = "SparkListenerStageSubmitted"
	TagStageCompleted      = "SparkListenerStageCompleted"
	TagTaskEnd             = "SparkListenerTaskEnd"
	TagJobStart            = "SparkListenerJobStart"
	TagJobEnd              = "SparkListenerJobEnd"
	TagSQLExecutionStart   = "org.apache.spark.sql.execution.ui.SparkListenerSQLExecutionStart"
	TagSQLExecutionEnd     = "org.apache.spark.sql.execution.ui.SparkListenerSQLExecutionEnd"
)

func (e Event) Tag() string {
	return e.Str("Event")
}

func (e Event) Str(key string) string {
	if s, ok := e[key].(string); ok {
		return s
	}
	return ""
}

// JSON numbers decode as float64; event-log integers (ids, timestamps, byte counts) are well
// within float64's exact range.
func (e Event) Int(key string) int64 {
	switch v := e[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	}
	return 0
}

func (e Event) Float(key string) float64 {
	switch v := e[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func (e Event) Bool(key string) bool {
	if b, ok := e[key].(bool); ok {
		return b
	}
	return false
}

func (e Event) Has(key string) bool {
	_, ok := e[key]
	return ok
}

// Nested object, or an empty Event if absent or not an object.
func (e Event) Sub(key string) Event {
	if m, ok := e[key].(map[string]any); ok {
		return Event(m)
	}
	return Event(nil)
}

// Array of nested objects; non-object elements are skipped.
func (e Event) List(key string) []Event {
	xs, ok := e[key].([]any)
	if !ok {
		return nil
	}
	ys := make([]Event, 0, len(xs))
	for _, x := range xs {
		if m, ok := x.(map[string]any); ok {
			ys = append(ys, Event(m))
		}
	}
	return ys
}

// String-keyed string map (Spark Properties etc); non-string values are skipped.
func (e Event) StrMap(key string) map[string]string {
	m, ok := e[key].(map[string]any)
	if !ok {
		return nil
	}
	ys := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			ys[k] = s
		}
	}
	return ys
}
