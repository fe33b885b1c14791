// Package drive wraps the Google Drive v3 API behind the small surface docrelay needs.
//
// A [Gateway] lists folders and allowed documents, fetches file metadata, and
// opens lazy [ContentStream] readers that report monotonic download progress.
// Google-native documents have no raw bytes and are exported to their Office
// equivalent instead.
//
// Every call is paced by a [Limiter] and retried with exponential backoff on
// rate limiting and server errors. Failures are returned as [*APIError] values
// that unwrap to the sentinels in the shared package, so callers classify them
// with errors.Is.
package drive
