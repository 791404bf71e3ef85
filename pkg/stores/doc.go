// Package stores provides persistence for factopt runs.
//
// SQLiteStore keeps run records, solved flow trajectories, auxiliary series,
// cost terms, build warnings and the event timeline in SQLite, with schema
// migrations embedded in the binary. It implements runner.Store so a runner
// can persist every scenario as it completes.
package stores
