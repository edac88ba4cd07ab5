package commands

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blelink/blelink-go/pkg/log"
)

const (
	addrA = "AA:BB:CC:DD:EE:FF"
	addrB = "11:22:33:44:55:66"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test"+log.FileExtension)

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func sampleEvents() []log.Event {
	base := time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)
	return []log.Event{
		{
			Timestamp: base,
			Address:   addrA,
			Direction: log.DirectionIn,
			Layer:     log.LayerTransport,
			Category:  log.CategorySighting,
			Sighting:  &log.SightingEvent{Source: "hci0", RSSI: -61, Connectable: true},
		},
		{
			Timestamp: base.Add(time.Second),
			Address:   addrA,
			SessionID: "3f2a9c1e-1111-2222-3333-444455556666",
			Direction: log.DirectionNone,
			Layer:     log.LayerSession,
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntitySession,
				OldState: "CONNECTING",
				NewState: "CONNECTED",
			},
		},
		{
			Timestamp: base.Add(2 * time.Second),
			Address:   addrA,
			SessionID: "3f2a9c1e-1111-2222-3333-444455556666",
			Direction: log.DirectionOut,
			Layer:     log.LayerSession,
			Category:  log.CategoryWrite,
			Write: &log.WriteEvent{
				UUID:         "0000ff01-0000-1000-8000-00805f9b34fb",
				Data:         []byte{0x01},
				Path:         log.WritePathDirect,
				WithResponse: true,
				Outcome:      log.OutcomeOK,
				Duration:     1500 * time.Microsecond,
			},
		},
		{
			Timestamp: base.Add(3 * time.Second),
			Address:   addrB,
			Direction: log.DirectionNone,
			Layer:     log.LayerAvailability,
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityAvailability,
				OldState: "SIGHTING_FRESH",
				NewState: "SIGHTING_STALE",
				Reason:   "watchdog",
			},
		},
		{
			Timestamp: base.Add(4 * time.Second),
			Address:   addrB,
			Entity:    "112233445566_5f9b34fb",
			Direction: log.DirectionOut,
			Layer:     log.LayerEntity,
			Category:  log.CategoryError,
			Error:     &log.ErrorEventData{Layer: log.LayerEntity, Message: "device not available", Context: "turn on"},
		},
	}
}

func TestFormatWriteEvent(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sampleEvents()[2])
	output := buf.String()

	for _, want := range []string{
		"2026-01-28T10:15:34.123456Z",
		addrA,
		"[sess:3f2a9c1e]",
		"OUT",
		"SESSION",
		"Write",
		"UUID: 0000ff01-0000-1000-8000-00805f9b34fb",
		"Data: 01",
		"Path: direct (request)",
		"Outcome: ok",
		"Duration: 1.500ms",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
}

func TestFormatSightingAndError(t *testing.T) {
	events := sampleEvents()

	var buf bytes.Buffer
	formatEvent(&buf, events[0])
	if out := buf.String(); !strings.Contains(out, "[sess:-]") || !strings.Contains(out, "Source: hci0  RSSI: -61 dBm  connectable") {
		t.Errorf("unexpected sighting output:\n%s", out)
	}

	buf.Reset()
	formatEvent(&buf, events[4])
	out := buf.String()
	if !strings.Contains(out, "Entity: 112233445566_5f9b34fb") {
		t.Errorf("expected entity line, got:\n%s", out)
	}
	if !strings.Contains(out, "Context: turn on") {
		t.Errorf("expected error context, got:\n%s", out)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Nanosecond, "0.500us"},
		{1500 * time.Microsecond, "1.500ms"},
		{2 * time.Second, "2.000s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	if l, err := ParseLayerFlag("availability"); err != nil || l != log.LayerAvailability {
		t.Errorf("ParseLayerFlag(availability) = %v, %v", l, err)
	}
	if _, err := ParseLayerFlag("wire"); err == nil {
		t.Error("expected error for unknown layer")
	}
	if d, err := ParseDirectionFlag("OUT"); err != nil || d != log.DirectionOut {
		t.Errorf("ParseDirectionFlag(OUT) = %v, %v", d, err)
	}
	if _, err := ParseDirectionFlag("sideways"); err == nil {
		t.Error("expected error for unknown direction")
	}
	if c, err := ParseCategoryFlag("Write"); err != nil || c != log.CategoryWrite {
		t.Errorf("ParseCategoryFlag(Write) = %v, %v", c, err)
	}
	if _, err := ParseCategoryFlag("message"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestRunViewFiltersByAddress(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{Address: strings.ToLower(addrB)}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, addrA) {
		t.Errorf("unexpected events for %s:\n%s", addrA, out)
	}
	if got := strings.Count(out, addrB); got != 2 {
		t.Errorf("expected 2 events for %s, got %d", addrB, got)
	}

	cat := log.CategoryWrite
	buf.Reset()
	if err := RunView(path, ViewFilter{Category: &cat}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if got := strings.Count(buf.String(), "Write\n"); got != 1 {
		t.Errorf("expected 1 write, got %d:\n%s", got, buf.String())
	}
}

func TestRunViewMissingFile(t *testing.T) {
	if err := RunView(filepath.Join(t.TempDir(), "nope.blog"), ViewFilter{}, io.Discard); err == nil {
		t.Error("expected error for missing file")
	}
}

func readAll(t *testing.T, path string) []log.Event {
	t.Helper()
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer reader.Close()

	var events []log.Event
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		events = append(events, event)
	}
}

func TestFilterBySession(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	outPath := filepath.Join(t.TempDir(), "filtered.blog")

	count, err := RunFilter(path, FilterOptions{
		Output:    outPath,
		SessionID: "3f2a9c1e-1111-2222-3333-444455556666",
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 events, got %d", count)
	}
	for _, e := range readAll(t, outPath) {
		if e.Address != addrA {
			t.Errorf("unexpected address %s", e.Address)
		}
	}
}

func TestFilterByTimeRangeAndLayer(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	outPath := filepath.Join(t.TempDir(), "filtered.blog")

	count, err := RunFilter(path, FilterOptions{
		Output:    outPath,
		TimeStart: "2026-01-28T10:15:33Z",
		TimeEnd:   "2026-01-28T10:15:36Z",
		Layer:     "session",
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 events, got %d", count)
	}
}

func TestFilterInvalidOptions(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "filtered.blog")

	for _, opts := range []FilterOptions{
		{Output: out, TimeStart: "yesterday"},
		{Output: out, TimeEnd: "tomorrow"},
		{Output: out, Layer: "wire"},
		{Output: out, Direction: "up"},
		{Output: out, Category: "frame"},
	} {
		if _, err := RunFilter(path, opts); err == nil {
			t.Errorf("expected error for %+v", opts)
		}
	}
}

func TestExportJSONL(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	outPath := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", outPath); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}
	f, err := os.Open(outPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("invalid JSON line: %v", err)
		}
		records = append(records, m)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}
	if records[0]["rssi"] != float64(-61) {
		t.Errorf("expected rssi -61, got %v", records[0]["rssi"])
	}
	if records[2]["data"] != "01" || records[2]["outcome"] != "ok" || records[2]["durationUs"] != float64(1500) {
		t.Errorf("unexpected write record: %v", records[2])
	}
	if records[3]["reason"] != "watchdog" {
		t.Errorf("unexpected state record: %v", records[3])
	}
}

func TestExportCSV(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	outPath := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, "csv", outPath); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}
	f, err := os.Open(outPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 6 {
		t.Fatalf("expected header + 5 rows, got %d", len(rows))
	}
	if rows[0][0] != "timestamp" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if rows[3][8] != "0000ff01-0000-1000-8000-00805f9b34fb=01" || rows[3][9] != "ok" {
		t.Errorf("unexpected write row: %v", rows[3])
	}
	if rows[4][8] != "SIGHTING_FRESH->SIGHTING_STALE" {
		t.Errorf("unexpected state row: %v", rows[4])
	}
}

func TestExportYAML(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	outPath := filepath.Join(t.TempDir(), "out.yaml")

	if err := RunExport(path, "yaml", outPath); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}
	f, err := os.Open(outPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	n := 0
	for {
		var r record
		if err := dec.Decode(&r); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("invalid YAML: %v", err)
		}
		if r.Address == "" {
			t.Errorf("record %d has no address", n)
		}
		n++
	}
	if n != 5 {
		t.Errorf("expected 5 documents, got %d", n)
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	if err := RunExport(path, "xml", filepath.Join(t.TempDir(), "out.xml")); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestStats(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	stats, err := Collect(reader)
	reader.Close()
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if stats.TotalEvents != 5 {
		t.Errorf("expected 5 events, got %d", stats.TotalEvents)
	}
	if stats.Errors != 1 {
		t.Errorf("expected 1 error, got %d", stats.Errors)
	}
	a := stats.Devices[addrA]
	if a == nil {
		t.Fatalf("missing stats for %s", addrA)
	}
	if a.Sightings != 1 || a.Writes != 1 || len(a.Sessions) != 1 {
		t.Errorf("unexpected stats for %s: %+v", addrA, a)
	}
	if a.WritesByResult[log.OutcomeOK] != 1 {
		t.Errorf("expected one ok write, got %v", a.WritesByResult)
	}
	if b := stats.Devices[addrB]; b == nil || b.Transitions != 1 {
		t.Errorf("expected one availability change for %s, got %+v", addrB, b)
	}

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Total Events: 5", "Devices: 2", "Writes: 1 (ok 1", "Availability changes: 1", "Errors: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}
