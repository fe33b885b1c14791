// Package auth drives the OAuth2 authorization-code handshake with Google.
//
// A [Flow] moves a session through Unauthenticated → AwaitingCallback →
// Authenticated. [Flow.BeginAuthorization] returns the consent URL plus an
// unguessable state token, and [Flow.CompleteAuthorization] validates the state
// echoed in the callback before exchanging the code for a credential.
//
// Pending states live in a [StateStore] between the two calls. Each state is
// single-use and expires after ten minutes; issuing a new one for a session
// discards the previous one.
package auth
