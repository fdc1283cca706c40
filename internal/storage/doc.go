// Package storage persists the small amount of bluecore state that
// must survive restarts: per-device profile connection policies and
// preferred-audio-profile bundles.
//
// Everything else (device descriptors, group state, connection state)
// is rebuilt from stack events at runtime and deliberately not stored.
//
// The SQLite schema lives in the migrations package; see
// migrations/*_initial_schema.up.sql for the table definitions.
package storage
