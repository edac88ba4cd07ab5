// Package log records a machine-readable trace of everything that happens to
// a managed device: sightings, writes, session and availability changes, and
// errors. It is separate from operational logging (slog).
//
// Typical wiring:
//
//	fl, _ := log.NewFileLogger("/var/lib/blelink/events.blog")
//	events := log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// Files are a plain concatenation of CBOR-encoded Event values; the
// blelink-log command views, filters and summarizes them.
package log
