package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/desertthunder/docrelay/internal/auth"
	"github.com/desertthunder/docrelay/internal/credentials"
	"github.com/desertthunder/docrelay/internal/shared"
)

// CallbackResult contains the result of an OAuth authorization flow.
type CallbackResult struct {
	Credential *credentials.Credential
	err        error
}

func (c *CallbackResult) Error() error {
	return c.err
}

// CallbackHandler handles the OAuth2 redirect for the CLI login flow.
// Implements the Handler interface for registration with a Router.
type CallbackHandler struct {
	flow        *auth.Flow
	redirectURI string
	path        string
	state       string
	resultChan  chan CallbackResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewCallbackHandler creates a callback handler for the given redirect URI and state token.
//
// The state token must come from [auth.Flow.BeginAuthorization] so it is unguessable.
func NewCallbackHandler(flow *auth.Flow, redirectURI, state string) (*CallbackHandler, error) {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid redirect URI %q: %w", redirectURI, shared.ErrInvalidConfig)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	return &CallbackHandler{
		flow:        flow,
		redirectURI: redirectURI,
		path:        path,
		state:       state,
		resultChan:  make(chan CallbackResult, 1),
	}, nil
}

// Routes returns the HTTP routes this handler serves.
func (h *CallbackHandler) Routes() []string {
	return []string{h.path}
}

// ServeHTTP handles the OAuth callback request.
//
// Completes the authorization through the flow and sends the result through the result channel.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Only handle callback once
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	callbackURL := h.redirectURI + "?" + r.URL.RawQuery

	cred, err := h.flow.CompleteAuthorization(r.Context(), callbackURL, h.state)
	if err != nil {
		h.Send(CallbackResult{err: err})
		http.Error(w, "Authorization failed: "+shared.Reason(err), callbackStatus(err))
		return
	}

	h.Send(CallbackResult{Credential: cred})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, callbackSuccessPage)
}

// Send sends the result through the channel (only once).
func (h *CallbackHandler) Send(result CallbackResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving OAuth flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *CallbackHandler) Result() <-chan CallbackResult {
	return h.resultChan
}

const callbackSuccessPage = `<!DOCTYPE html>
<html>
<head>
    <title>Authorization Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1a73e8; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ Signed in to Google Drive</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`

// callbackStatus maps a failed code exchange onto a response status. A state
// mismatch is the caller's fault; anything else means the provider refused.
func callbackStatus(err error) int {
	if errors.Is(err, shared.ErrAuthMismatch) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}
