package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/blelink/blelink-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Devices           map[string]*DeviceStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// DeviceStats holds statistics for a single device.
type DeviceStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Sightings int
	Sources   map[string]int
	Sessions  map[string]bool

	Writes         int
	WritesByPath   map[log.WritePath]int
	WritesByResult map[log.Outcome]int
	WriteTime      time.Duration

	// Transitions counts availability changes.
	Transitions int
}

func newDeviceStats(ts time.Time) *DeviceStats {
	return &DeviceStats{
		FirstSeen:      ts,
		LastSeen:       ts,
		Sources:        make(map[string]int),
		Sessions:       make(map[string]bool),
		WritesByPath:   make(map[log.WritePath]int),
		WritesByResult: make(map[log.Outcome]int),
	}
}

// Collect reads every event of r into a Stats.
func Collect(r *log.Reader) (*Stats, error) {
	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Devices:           make(map[string]*DeviceStats),
	}

	for {
		event, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByLayer[event.Layer]++
		stats.EventsByCategory[event.Category]++
		stats.EventsByDirection[event.Direction]++

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		dev, ok := stats.Devices[event.Address]
		if !ok {
			dev = newDeviceStats(event.Timestamp)
			stats.Devices[event.Address] = dev
		}
		dev.Events++
		if event.Timestamp.After(dev.LastSeen) {
			dev.LastSeen = event.Timestamp
		}
		if event.SessionID != "" {
			dev.Sessions[event.SessionID] = true
		}

		switch {
		case event.Sighting != nil:
			dev.Sightings++
			dev.Sources[event.Sighting.Source]++
		case event.Write != nil:
			dev.Writes++
			dev.WritesByPath[event.Write.Path]++
			dev.WritesByResult[event.Write.Outcome]++
			dev.WriteTime += event.Write.Duration
		case event.StateChange != nil:
			if event.StateChange.Entity == log.StateEntityAvailability {
				dev.Transitions++
			}
		case event.Error != nil:
			stats.Errors++
		}
	}
	return stats, nil
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats, err := Collect(reader)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== blelink Event Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerSession, log.LayerAvailability, log.LayerEntity} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategorySighting, log.CategoryWrite, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut, log.DirectionNone} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Devices: %d\n", len(stats.Devices))
	addrs := make([]string, 0, len(stats.Devices))
	for addr := range stats.Devices {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	for _, addr := range addrs {
		d := stats.Devices[addr]
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  [%s] %d events over %s\n", addr, d.Events, d.LastSeen.Sub(d.FirstSeen).Round(time.Millisecond))
		if d.Sightings > 0 {
			fmt.Fprintf(w, "           Sightings: %d from %d sources\n", d.Sightings, len(d.Sources))
		}
		if len(d.Sessions) > 0 {
			fmt.Fprintf(w, "           Sessions: %d\n", len(d.Sessions))
		}
		if d.Writes > 0 {
			avg := d.WriteTime / time.Duration(d.Writes)
			fmt.Fprintf(w, "           Writes: %d (ok %d, unreachable %d, failed %d, abandoned %d; fast %d, direct %d; avg %s)\n",
				d.Writes,
				d.WritesByResult[log.OutcomeOK],
				d.WritesByResult[log.OutcomeUnreachable],
				d.WritesByResult[log.OutcomeFailed],
				d.WritesByResult[log.OutcomeAbandoned],
				d.WritesByPath[log.WritePathFast],
				d.WritesByPath[log.WritePathDirect],
				formatDuration(avg))
		}
		if d.Transitions > 0 {
			fmt.Fprintf(w, "           Availability changes: %d\n", d.Transitions)
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
