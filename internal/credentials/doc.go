// Package credentials owns the OAuth credential for a session.
//
// A [Store] saves, loads and clears one [Credential] per session id. Absence is
// reported as (nil, false, nil) so callers route to authorization instead of
// treating it as a failure. Three stores are available:
//   - [MemoryStore] : process-local, the web relay default
//   - [FileStore] : atomic 0600 JSON file, used by the CLI
//   - repositories.CredentialRepository : SQLite, for web sessions that survive restarts
//
// A [Refresher] turns a store into [oauth2.TokenSource] values that refresh
// expired access tokens at most once per session at a time and persist the
// refreshed credential before handing it out. Keep one Refresher per store.
package credentials
