// Package server provides the web relay: HTTP routing, middleware, sessions, and OAuth callback handling.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method patterns.
//
// # OAuth Callback Handler
//
// [CallbackHandler] completes the authorization code flow for the CLI. It runs on a short-lived loopback
// server, validates the state parameter, exchanges the code through [auth.Flow], and sends exactly one
// result through a channel. Later callbacks are rejected.
//
// # Web Relay
//
// [App] serves the browser workflow: authorize, list folders, list files, and download selections into
// the local download root. Each browser gets a session id in a signed cookie ([SessionManager]); the
// credential for that id lives in a [credentials.Store] and pending authorization states live in an
// [auth.StateStore]. Authorization failures on any route clear the credential and send the browser back
// to /authorize. Outcomes are reported with flash messages.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
