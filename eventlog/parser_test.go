package eventlog

import (
	"strings"
	"testing"
)

func TestScanSkipsBadLines(t *testing.T) {
	input := `{"Event":"SparkListenerStageSubmitted","Stage Info":{"Stage ID":3}}

this is not json
{"Event":"SparkListenerTaskEnd","Stage ID":3}
{"broken":
`
	events := Scan(strings.NewReader(input))
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Tag() != TagStageSubmitted {
		t.Fatal("Tag ", events[0].Tag())
	}
	if events[0].Sub("Stage Info").Int("Stage ID") != 3 {
		t.Fatal("Stage ID ", events[0])
	}
	if events[1].Tag() != TagTaskEnd {
		t.Fatal("Tag ", events[1].Tag())
	}
}

func TestScanEmptyInput(t *testing.T) {
	if events := Scan(strings.NewReader("")); len(events) != 0 {
		t.Fatal("Expected no events")
	}
	if events := Scan(strings.NewReader("\n\n  \n")); len(events) != 0 {
		t.Fatal("Expected no events for blank lines")
	}
}

func TestEventAccessors(t *testing.T) {
	events := Scan(strings.NewReader(
		`{"Event":"X","S":"v","N":42,"F":1.5,"B":true,"M":{"K":"w"},"L":[{"A":1},7,{"A":2}],"P":{"a":"b","c":3}}`))
	if len(events) != 1 {
		t.Fatal("parse")
	}
	ev := events[0]
	if ev.Str("S") != "v" || ev.Str("missing") != "" || ev.Str("N") != "" {
		t.Fatal("Str")
	}
	if ev.Int("N") != 42 || ev.Int("missing") != 0 || ev.Int("S") != 0 {
		t.Fatal("Int")
	}
	if ev.Float("F") != 1.5 {
		t.Fatal("Float")
	}
	if !ev.Bool("B") || ev.Bool("missing") {
		t.Fatal("Bool")
	}
	if ev.Sub("M").Str("K") != "w" {
		t.Fatal("Sub")
	}
	if ev.Sub("missing").Str("K") != "" {
		t.Fatal("Sub nil-safety")
	}
	l := ev.List("L")
	if len(l) != 2 || l[0].Int("A") != 1 || l[1].Int("A") != 2 {
		t.Fatal("List ", l)
	}
	m := ev.StrMap("P")
	if len(m) != 1 || m["a"] != "b" {
		t.Fatal("StrMap ", m)
	}
}
