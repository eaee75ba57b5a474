package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devtree-io/devtree-go/pkg/log"
)

var base = time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)

func sampleEvents() []log.Event {
	return []log.Event{
		{
			Timestamp:    base,
			ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
			Direction:    log.DirectionOut,
			Layer:        log.LayerTransport,
			Category:     log.CategoryMessage,
			Frame:        &log.FrameEvent{Size: 12, Data: []byte{0xa1, 0x01}},
		},
		{
			Timestamp:    base.Add(time.Millisecond),
			ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
			Direction:    log.DirectionOut,
			Layer:        log.LayerRouting,
			Category:     log.CategoryMessage,
			Device:       "demo/tracker",
			Message:      &log.MessageEvent{Kind: "DATA", SenderID: 1, TypeID: 2, TypeName: "devtree.report.pose", PayloadSize: 40},
		},
		{
			Timestamp:    base.Add(2 * time.Millisecond),
			ConnectionID: "def67890",
			Layer:        log.LayerRouting,
			Category:     log.CategoryTree,
			Tree:         &log.TreeEvent{Nodes: 9, Changed: true, BadPaths: []string{"/me/ghost"}, Reason: "start"},
		},
		log.NewErrorEvent("def67890", log.LayerWire, errors.New("bad envelope"), "decode"),
	}
}

func writeLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.cbor")
	l, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	for _, e := range sampleEvents() {
		l.Log(e)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func TestFormatEvent(t *testing.T) {
	events := sampleEvents()

	var buf bytes.Buffer
	formatEvent(&buf, events[1])
	out := buf.String()
	for _, want := range []string{"2026-01-28T10:15:32.124456Z", "[conn:abc12345]", "ROUTING", "DATA", "demo/tracker", "devtree.report.pose", "40 bytes"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	formatEvent(&buf, events[2])
	if !strings.Contains(buf.String(), "Bad path: /me/ghost") {
		t.Errorf("tree event output:\n%s", buf.String())
	}
}

func TestParseFlags(t *testing.T) {
	if l, err := ParseLayer("Routing"); err != nil || l != log.LayerRouting {
		t.Errorf("ParseLayer(Routing) = %v, %v", l, err)
	}
	if _, err := ParseLayer("service"); err == nil {
		t.Error("ParseLayer(service) should fail")
	}
	if c, err := ParseCategory("TREE"); err != nil || c != log.CategoryTree {
		t.Errorf("ParseCategory(TREE) = %v, %v", c, err)
	}
}

func TestRunViewFiltersByDevice(t *testing.T) {
	path := writeLog(t)

	var buf bytes.Buffer
	if err := RunView(path, log.Filter{Device: "demo/tracker"}, &buf); err != nil {
		t.Fatalf("RunView: %v", err)
	}
	if n := strings.Count(buf.String(), "[conn:"); n != 1 {
		t.Errorf("events shown = %d, want 1:\n%s", n, buf.String())
	}
}

func TestCollectStats(t *testing.T) {
	stats, err := CollectStats(writeLog(t))
	if err != nil {
		t.Fatalf("CollectStats: %v", err)
	}
	if stats.TotalEvents != 4 {
		t.Errorf("TotalEvents = %d, want 4", stats.TotalEvents)
	}
	if len(stats.Connections) != 2 {
		t.Errorf("Connections = %d, want 2", len(stats.Connections))
	}
	if stats.TreeUpdates != 1 || len(stats.LastBadPaths) != 1 {
		t.Errorf("tree stats = %d updates, bad %v", stats.TreeUpdates, stats.LastBadPaths)
	}
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
	if stats.Devices["demo/tracker"] != 1 {
		t.Errorf("Devices = %v", stats.Devices)
	}

	var buf bytes.Buffer
	printStats(&buf, stats)
	if !strings.Contains(buf.String(), "Total Events: 4") {
		t.Errorf("stats output:\n%s", buf.String())
	}
}

func TestRunFilter(t *testing.T) {
	path := writeLog(t)
	out := filepath.Join(t.TempDir(), "routing.cbor")

	n, err := RunFilter(path, FilterOptions{Output: out, Layer: "routing"})
	if err != nil {
		t.Fatalf("RunFilter: %v", err)
	}
	if n != 2 {
		t.Errorf("filtered = %d, want 2", n)
	}

	stats, err := CollectStats(out)
	if err != nil {
		t.Fatalf("CollectStats: %v", err)
	}
	if stats.TotalEvents != 2 {
		t.Errorf("filtered file has %d events", stats.TotalEvents)
	}

	if _, err := RunFilter(path, FilterOptions{}); err == nil {
		t.Error("RunFilter without output should fail")
	}
	if _, err := BuildFilter(FilterOptions{TimeStart: "yesterday"}); err == nil {
		t.Error("bad time-start should fail")
	}
}

func TestExportJSONL(t *testing.T) {
	reader, err := log.NewReader(writeLog(t), log.Filter{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if err := exportJSONL(reader, &buf); err != nil {
		t.Fatalf("exportJSONL: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want 4", len(lines))
	}
	var first exportEvent
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if first.FrameSize != 12 || first.Layer != "TRANSPORT" {
		t.Errorf("first = %+v", first)
	}
}
