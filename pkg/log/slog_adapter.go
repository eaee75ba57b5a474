package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes events to an slog.Logger at debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

func (a *SlogAdapter) Log(e Event) {
	attrs := make([]slog.Attr, 0, 10)
	attrs = append(attrs,
		slog.String("conn_id", e.ConnectionID),
		slog.String("direction", e.Direction.String()),
		slog.String("layer", e.Layer.String()),
		slog.String("category", e.Category.String()),
	)
	if e.Device != "" {
		attrs = append(attrs, slog.String("device", e.Device))
	}

	switch {
	case e.Frame != nil:
		attrs = append(attrs, slog.Int("frame_size", e.Frame.Size))
	case e.Message != nil:
		attrs = append(attrs,
			slog.String("kind", e.Message.Kind),
			slog.Uint64("sender", uint64(e.Message.SenderID)),
			slog.Uint64("type", uint64(e.Message.TypeID)),
			slog.Int("size", e.Message.PayloadSize),
		)
		if e.Message.TypeName != "" {
			attrs = append(attrs, slog.String("type_name", e.Message.TypeName))
		}
	case e.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", e.StateChange.Entity.String()),
			slog.String("old_state", e.StateChange.OldState),
			slog.String("new_state", e.StateChange.NewState),
		)
		if e.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", e.StateChange.Reason))
		}
	case e.Tree != nil:
		attrs = append(attrs,
			slog.Int("nodes", e.Tree.Nodes),
			slog.Bool("changed", e.Tree.Changed),
			slog.Any("bad_paths", e.Tree.BadPaths),
		)
	case e.Error != nil:
		attrs = append(attrs,
			slog.String("error", e.Error.Message),
			slog.String("context", e.Error.Context),
		)
	}
	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "routing", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
