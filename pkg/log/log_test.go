package log

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureLogger struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureLogger) Log(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func TestEncodeDecodeEvent(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	in := Event{
		Timestamp:    ts,
		ConnectionID: "c1",
		Direction:    DirectionOut,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		Device:       "p/d",
		Message: &MessageEvent{
			Kind:        "DATA",
			SenderID:    3,
			TypeID:      7,
			TypeName:    "devtree.report.pose",
			SourceTime:  ts,
			PayloadSize: 42,
		},
	}

	data, err := EncodeEvent(in)
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	out, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}

	if !out.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", out.Timestamp, ts)
	}
	if out.Device != "p/d" {
		t.Errorf("Device = %q, want %q", out.Device, "p/d")
	}
	if out.Message == nil {
		t.Fatal("Message is nil")
	}
	if !out.Message.SourceTime.Equal(ts) {
		t.Errorf("SourceTime = %v, want %v", out.Message.SourceTime, ts)
	}
	got, want := *out.Message, *in.Message
	got.SourceTime, want.SourceTime = time.Time{}, time.Time{}
	if got != want {
		t.Errorf("Message = %+v, want %+v", got, want)
	}
}

func TestNewFrameEventTruncates(t *testing.T) {
	big := bytes.Repeat([]byte{0xAB}, MaxFrameData+10)
	fe := NewFrameEvent(len(big)+4, big)

	if !fe.Truncated {
		t.Error("Truncated = false, want true")
	}
	if len(fe.Data) != MaxFrameData {
		t.Errorf("len(Data) = %d, want %d", len(fe.Data), MaxFrameData)
	}

	small := NewFrameEvent(8, []byte{1, 2, 3, 4})
	if small.Truncated || len(small.Data) != 4 {
		t.Errorf("small frame = %+v", small)
	}
}

func TestFileLoggerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.dtlog")

	l, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	base := time.Now()
	for i := 0; i < 5; i++ {
		cat := CategoryMessage
		if i%2 == 1 {
			cat = CategoryTree
		}
		l.Log(Event{
			Timestamp:    base.Add(time.Duration(i) * time.Millisecond),
			ConnectionID: "c",
			Category:     cat,
			Tree:         &TreeEvent{Nodes: i},
		})
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	l.Log(Event{ConnectionID: "after-close"})

	r, err := NewReader(path, Filter{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	all, err := r.All()
	r.Close()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("read %d events, want 5", len(all))
	}

	tree := CategoryTree
	r, err = NewReader(path, Filter{Category: &tree})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	filtered, err := r.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(filtered) != 2 {
		t.Errorf("filtered %d events, want 2", len(filtered))
	}
	for _, e := range filtered {
		if e.Tree == nil || e.Tree.Nodes%2 != 1 {
			t.Errorf("unexpected event %+v", e)
		}
	}
}

func TestStreamReaderEOF(t *testing.T) {
	var buf bytes.Buffer
	l := NewStreamLogger(&buf)
	l.Log(Event{ConnectionID: "x", Device: "a/b"})
	l.Log(Event{ConnectionID: "y", Device: "c/d"})

	r := NewStreamReader(&buf, Filter{Device: "c/d"})
	e, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if e.ConnectionID != "y" {
		t.Errorf("ConnectionID = %q, want %q", e.ConnectionID, "y")
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() error = %v, want io.EOF", err)
	}
}

func TestMultiLoggerSkipsNil(t *testing.T) {
	a, b := &captureLogger{}, &captureLogger{}
	m := NewMultiLogger(a, nil, b)
	m.Log(Event{ConnectionID: "z"})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("fan out = %d/%d, want 1/1", len(a.events), len(b.events))
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	NewSlogAdapter(slog.New(h)).Log(Event{
		ConnectionID: "c9",
		Layer:        LayerRouting,
		Category:     CategoryTree,
		Tree:         &TreeEvent{Nodes: 12, Changed: true, BadPaths: []string{"/me/hand"}},
	})

	out := buf.String()
	for _, want := range []string{"conn_id=c9", "layer=ROUTING", "nodes=12", "/me/hand"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) should be NoopLogger")
	}
	c := &captureLogger{}
	if OrNoop(c) != Logger(c) {
		t.Error("OrNoop should return the logger unchanged")
	}
}

func TestSummary(t *testing.T) {
	e := NewErrorEvent("c", LayerTransport, errors.New("boom"), "read")
	if got := e.Summary(); got != "error: boom" {
		t.Errorf("Summary() = %q, want %q", got, "error: boom")
	}
	if e.Category != CategoryError {
		t.Errorf("Category = %v, want %v", e.Category, CategoryError)
	}
}
