package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"

	. "sparkalyze/common"
)

// Event-log lines are usually short but a single SQL plan description can run to megabytes, so
// the scanner needs a generous ceiling.
const maxLineBytes = 64 * 1024 * 1024

// Parse the input line by line.  Each line is an independent JSON object; empty lines are
// skipped silently, lines that fail to parse are skipped with a warning identifying the 1-based
// line number.  A malformed line never aborts the run.  No ordering is imposed beyond file
// order, which the assembler guarantees is chronological.
func Scan(input io.Reader) []Event {
	events := make([]Event, 0)
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			Log.Warningf("Skipping line %d: %v", lineNum, err)
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		// An over-long or truncated tail is data loss but not fatal; everything parsed so
		// far is still analyzable.
		Log.Warningf("Stopped reading after line %d: %v", lineNum, err)
	}
	return events
}

// Missing input file is fatal and reported before any processing starts.
func ReadFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Scan(f), nil
}
