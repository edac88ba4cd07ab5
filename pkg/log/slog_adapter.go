package log

import (
	"context"
	"encoding/hex"
	"log/slog"
)

// SlogAdapter mirrors events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter returns an adapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event as one structured record.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("address", event.Address),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session", event.SessionID))
	}
	if event.Entity != "" {
		attrs = append(attrs, slog.String("entity", event.Entity))
	}

	switch {
	case event.Sighting != nil:
		attrs = append(attrs,
			slog.String("source", event.Sighting.Source),
			slog.Int("rssi", int(event.Sighting.RSSI)),
		)
		if event.Sighting.Recovered {
			attrs = append(attrs, slog.Bool("recovered", true))
		}
	case event.Write != nil:
		attrs = append(attrs,
			slog.String("uuid", event.Write.UUID),
			slog.String("data", hex.EncodeToString(event.Write.Data)),
			slog.String("path", event.Write.Path.String()),
			slog.String("outcome", event.Write.Outcome.String()),
			slog.Duration("duration", event.Write.Duration),
		)
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity_kind", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "event", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
