package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/devtree-io/devtree-go/pkg/log"
)

// exportEvent is the JSON shape of one event.
type exportEvent struct {
	Timestamp    string `json:"timestamp"`
	ConnectionID string `json:"connection_id"`
	Direction    string `json:"direction"`
	Layer        string `json:"layer"`
	Category     string `json:"category"`
	Device       string `json:"device,omitempty"`
	Summary      string `json:"summary"`

	Message     *log.MessageEvent     `json:"message,omitempty"`
	StateChange *log.StateChangeEvent `json:"state_change,omitempty"`
	Tree        *log.TreeEvent        `json:"tree,omitempty"`
	Error       *log.ErrorEventData   `json:"error,omitempty"`
	FrameSize   int                   `json:"frame_size,omitempty"`
}

// RunExport writes the log as JSON lines to output, or stdout when output
// is empty.
func RunExport(path, output string) error {
	reader, err := log.NewReader(path, log.Filter{})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return exportJSONL(reader, w)
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	enc := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		out := exportEvent{
			Timestamp:    event.Timestamp.UTC().Format(time.RFC3339Nano),
			ConnectionID: event.ConnectionID,
			Direction:    event.Direction.String(),
			Layer:        event.Layer.String(),
			Category:     event.Category.String(),
			Device:       event.Device,
			Summary:      event.Summary(),
			Message:      event.Message,
			StateChange:  event.StateChange,
			Tree:         event.Tree,
			Error:        event.Error,
		}
		if event.Frame != nil {
			out.FrameSize = event.Frame.Size
		}
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}
}
