// Package persistence stores the last rendered state of switch entities so
// they can be restored at startup.
//
// FileStore writes a single JSON file and suits small installations.
// SQLiteStore keeps the same records in a SQLite database. Nothing about
// connections or sessions is persisted.
package persistence
