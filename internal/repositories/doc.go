// Package repositories implements SQLite persistence for credentials and download history.
//
// Key Implementations:
//   - [CredentialRepository] : per-session OAuth credentials, a [credentials.Store]
//   - [DownloadRepository] : finished batch reports and their per-file results
//
// Sequence numbers provide stable, human-readable ordering (e.g., batch #42) independent of UUIDs and timestamps.
// [NextSequence] atomically increments the per-table counters kept in dedicated sequence tables.
package repositories
