package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// Token endpoint fixtures.
const (
	ValidCode    = "good-code"
	ClientID     = "client-id"
	ClientSecret = "client-secret"
	DriveScope   = "https://www.googleapis.com/auth/drive.readonly"
)

type tokenMode int

const (
	tokenOK tokenMode = iota
	tokenRejected
	tokenUnavailable
)

// TokenServer fakes Google's OAuth2 token endpoint.
type TokenServer struct {
	*httptest.Server

	// RefreshToken is issued on code exchange and accepted on refresh.
	RefreshToken string
	// OmitRefreshToken drops refresh_token from code exchange responses.
	OmitRefreshToken bool
	// Delay is applied before every token response.
	Delay time.Duration

	mu       sync.Mutex
	mode     tokenMode
	calls    int
	lastForm url.Values
}

// NewTokenServer starts a TokenServer that is closed when the test ends.
func NewTokenServer(t *testing.T) *TokenServer {
	t.Helper()
	s := &TokenServer{RefreshToken: "refresh-token"}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", s.token)
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Reject makes every subsequent request fail with invalid_grant.
func (s *TokenServer) Reject() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = tokenRejected
}

// Unavailable makes every subsequent request fail with 503.
func (s *TokenServer) Unavailable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = tokenUnavailable
}

// Calls returns the number of token requests served.
func (s *TokenServer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// LastForm returns the form of the most recent token request.
func (s *TokenServer) LastForm() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastForm
}

// Config returns a client configuration pointed at this server.
func (s *TokenServer) Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     ClientID,
		ClientSecret: ClientSecret,
		RedirectURL:  "http://localhost:5000/oauth2callback",
		Scopes:       []string{DriveScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:   s.URL + "/auth",
			TokenURL:  s.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (s *TokenServer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.calls++
	n := s.calls
	s.lastForm = r.PostForm
	mode := s.mode
	s.mu.Unlock()

	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}

	w.Header().Set("Content-Type", "application/json")

	switch mode {
	case tokenRejected:
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`)
		return
	case tokenUnavailable:
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":"temporarily_unavailable"}`)
		return
	}

	resp := map[string]any{
		"access_token": fmt.Sprintf("access-%d", n),
		"token_type":   "Bearer",
		"expires_in":   3600,
		"scope":        DriveScope,
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		if r.PostForm.Get("code") != ValidCode {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Malformed auth code."}`)
			return
		}
		if !s.OmitRefreshToken {
			resp["refresh_token"] = s.RefreshToken
		}
	case "refresh_token":
		if r.PostForm.Get("refresh_token") != s.RefreshToken {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Bad refresh token."}`)
			return
		}
	default:
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"unsupported_grant_type"}`)
		return
	}

	json.NewEncoder(w).Encode(resp)
}
