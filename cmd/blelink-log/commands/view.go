// Package commands implements the blelink-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/blelink/blelink-go/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Address   string
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
}

func (f ViewFilter) toLogFilter() log.Filter {
	return log.Filter{
		Address:   f.Address,
		Layer:     f.Layer,
		Direction: f.Direction,
		Category:  f.Category,
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp address [sess:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	sess := shortenSessionID(event.SessionID)
	if sess == "" {
		sess = "-"
	}

	fmt.Fprintf(w, "%s %s [sess:%s] %-3s %s %s\n",
		ts, event.Address, sess, event.Direction.String(), event.Layer.String(), typeLabel(event))

	if event.Entity != "" {
		fmt.Fprintf(w, "  Entity: %s\n", event.Entity)
	}

	switch {
	case event.Sighting != nil:
		formatSightingDetails(w, event.Sighting)
	case event.Write != nil:
		formatWriteDetails(w, event.Write)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// typeLabel names the payload carried by event.
func typeLabel(event log.Event) string {
	switch {
	case event.Sighting != nil:
		return "Sighting"
	case event.Write != nil:
		return "Write"
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenSessionID returns the first 8 characters of the session ID.
func shortenSessionID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatSightingDetails(w io.Writer, s *log.SightingEvent) {
	fmt.Fprintf(w, "  Source: %s  RSSI: %d dBm", s.Source, s.RSSI)
	if s.Connectable {
		fmt.Fprint(w, "  connectable")
	}
	fmt.Fprintln(w)
	if s.Recovered {
		fmt.Fprintln(w, "  Recovered availability")
	}
}

func formatWriteDetails(w io.Writer, we *log.WriteEvent) {
	fmt.Fprintf(w, "  UUID: %s\n", we.UUID)
	if len(we.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s\n", hex.EncodeToString(we.Data))
	}
	mode := "command"
	if we.WithResponse {
		mode = "request"
	}
	fmt.Fprintf(w, "  Path: %s (%s)  Outcome: %s  Duration: %s\n",
		we.Path.String(), mode, we.Outcome.String(), formatDuration(we.Duration))
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseLayerFlag parses a layer string from command-line flag (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	l, ok := log.ParseLayer(strings.ToUpper(s))
	if !ok {
		return 0, fmt.Errorf("invalid layer: %s (must be transport, session, availability, or entity)", s)
	}
	return l, nil
}

// ParseDirectionFlag parses a direction string from command-line flag (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	case "none", "-":
		return log.DirectionNone, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in, out, or none)", s)
	}
}

// ParseCategoryFlag parses a category string from command-line flag (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	c, ok := log.ParseCategory(strings.ToUpper(s))
	if !ok {
		return 0, fmt.Errorf("invalid category: %s (must be sighting, write, state, or error)", s)
	}
	return c, nil
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter.toLogFilter())
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}

	return nil
}
