package commands

import (
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/blelink/blelink-go/pkg/log"
)

// RunExport exports the log file to the specified format.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	// Determine output writer
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	case "yaml":
		return exportYAML(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv, yaml)", format)
	}
}

// record is the flattened export form of an event.
type record struct {
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	Address   string `json:"address" yaml:"address"`
	SessionID string `json:"sessionId,omitempty" yaml:"sessionId,omitempty"`
	Direction string `json:"direction" yaml:"direction"`
	Layer     string `json:"layer" yaml:"layer"`
	Category  string `json:"category" yaml:"category"`
	Entity    string `json:"entity,omitempty" yaml:"entity,omitempty"`
	Type      string `json:"type" yaml:"type"`

	Source      string `json:"source,omitempty" yaml:"source,omitempty"`
	RSSI        *int16 `json:"rssi,omitempty" yaml:"rssi,omitempty"`
	Connectable bool   `json:"connectable,omitempty" yaml:"connectable,omitempty"`

	UUID       string `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	Data       string `json:"data,omitempty" yaml:"data,omitempty"`
	Path       string `json:"path,omitempty" yaml:"path,omitempty"`
	Outcome    string `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	DurationUS *int64 `json:"durationUs,omitempty" yaml:"durationUs,omitempty"`

	OldState string `json:"oldState,omitempty" yaml:"oldState,omitempty"`
	NewState string `json:"newState,omitempty" yaml:"newState,omitempty"`
	Reason   string `json:"reason,omitempty" yaml:"reason,omitempty"`

	Message string `json:"message,omitempty" yaml:"message,omitempty"`
	Context string `json:"context,omitempty" yaml:"context,omitempty"`
}

func toRecord(event log.Event) record {
	r := record{
		Timestamp: event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		Address:   event.Address,
		SessionID: event.SessionID,
		Direction: event.Direction.String(),
		Layer:     event.Layer.String(),
		Category:  event.Category.String(),
		Entity:    event.Entity,
		Type:      typeLabel(event),
	}
	switch {
	case event.Sighting != nil:
		rssi := event.Sighting.RSSI
		r.Source = event.Sighting.Source
		r.RSSI = &rssi
		r.Connectable = event.Sighting.Connectable
	case event.Write != nil:
		us := event.Write.Duration.Microseconds()
		r.UUID = event.Write.UUID
		r.Data = hex.EncodeToString(event.Write.Data)
		r.Path = event.Write.Path.String()
		r.Outcome = event.Write.Outcome.String()
		r.DurationUS = &us
	case event.StateChange != nil:
		r.OldState = event.StateChange.OldState
		r.NewState = event.StateChange.NewState
		r.Reason = event.StateChange.Reason
	case event.Error != nil:
		r.Message = event.Error.Message
		r.Context = event.Error.Context
	}
	return r
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(toRecord(event)); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

func exportYAML(reader *log.Reader, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(toRecord(event)); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "address", "session_id", "direction", "layer", "category", "entity", "type", "detail", "outcome"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		r := toRecord(event)
		detail, outcome := "", ""
		switch {
		case event.Sighting != nil:
			detail = r.Source + " " + strconv.Itoa(int(event.Sighting.RSSI))
		case event.Write != nil:
			detail = r.UUID + "=" + r.Data
			outcome = r.Outcome
		case event.StateChange != nil:
			detail = r.OldState + "->" + r.NewState
			outcome = r.Reason
		case event.Error != nil:
			detail = r.Message
		}

		row := []string{r.Timestamp, r.Address, r.SessionID, r.Direction, r.Layer, r.Category, r.Entity, r.Type, detail, outcome}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}
