package store

// Package store persists the reminder queue as one opaque blob.
//
// It currently supports:
//   - "blob": a named-blob HTTP service (the default)
//   - "file": a local JSON file
//   - "sqlite": a local SQLite database (optional build tag)
//
// Every driver satisfies the same contract: Load returns an empty list when
// no blob exists yet, Save replaces the whole blob. Callers must hold the
// mutation lease around a load→save cycle; the store itself offers no
// transactions.
