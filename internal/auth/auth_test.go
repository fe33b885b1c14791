package auth

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/docrelay/internal/shared"
	tu "github.com/desertthunder/docrelay/internal/testing"
)

const callbackBase = "http://localhost:5000/oauth2callback"

func callback(state, code string, extra ...string) string {
	q := url.Values{}
	if state != "" {
		q.Set("state", state)
	}
	if code != "" {
		q.Set("code", code)
	}
	for i := 0; i+1 < len(extra); i += 2 {
		q.Set(extra[i], extra[i+1])
	}
	return callbackBase + "?" + q.Encode()
}

func TestBeginAuthorization(t *testing.T) {
	srv := tu.NewTokenServer(t)

	t.Run("URL carries offline access and state", func(t *testing.T) {
		flow := NewFlowFromConfig(srv.Config(), true)
		authURL, state, err := flow.BeginAuthorization([]string{tu.DriveScope}, callbackBase)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(state) != 32 {
			t.Errorf("expected 32 hex chars, got %q", state)
		}

		u, err := url.Parse(authURL)
		if err != nil {
			t.Fatalf("invalid auth URL: %v", err)
		}
		q := u.Query()
		checks := map[string]string{
			"state":                  state,
			"access_type":            "offline",
			"include_granted_scopes": "true",
			"prompt":                 "consent",
			"redirect_uri":           callbackBase,
			"scope":                  tu.DriveScope,
			"client_id":              tu.ClientID,
			"response_type":          "code",
		}
		for k, want := range checks {
			if got := q.Get(k); got != want {
				t.Errorf("%s = %q, want %q", k, got, want)
			}
		}
	})

	t.Run("States are unique", func(t *testing.T) {
		flow := NewFlowFromConfig(srv.Config(), false)
		_, a, _ := flow.BeginAuthorization(nil, "")
		_, b, _ := flow.BeginAuthorization(nil, "")
		if a == b {
			t.Error("expected distinct states")
		}
	})

	t.Run("Consent prompt is optional", func(t *testing.T) {
		flow := NewFlowFromConfig(srv.Config(), false)
		authURL, _, _ := flow.BeginAuthorization(nil, "")
		u, _ := url.Parse(authURL)
		if u.Query().Has("prompt") {
			t.Error("prompt should be omitted when consent is not forced")
		}
		if u.Query().Get("redirect_uri") != "http://localhost:5000/oauth2callback" {
			t.Errorf("expected configured redirect, got %s", u.Query().Get("redirect_uri"))
		}
	})
}

func TestCompleteAuthorization(t *testing.T) {
	ctx := context.Background()

	t.Run("Matching state", func(t *testing.T) {
		srv := tu.NewTokenServer(t)
		flow := NewFlowFromConfig(srv.Config(), true)
		_, state, _ := flow.BeginAuthorization(nil, callbackBase)

		cred, err := flow.CompleteAuthorization(ctx, callback(state, tu.ValidCode), state)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cred.RefreshToken != srv.RefreshToken {
			t.Errorf("expected refresh token %s, got %s", srv.RefreshToken, cred.RefreshToken)
		}
		if cred.AccessToken == "" || cred.TokenURI != srv.URL+"/token" || cred.ClientID != tu.ClientID {
			t.Errorf("unexpected credential %+v", cred)
		}
		if len(cred.Scopes) != 1 || cred.Scopes[0] != tu.DriveScope {
			t.Errorf("unexpected scopes %v", cred.Scopes)
		}
		if got := srv.LastForm().Get("redirect_uri"); got != callbackBase {
			t.Errorf("expected redirect_uri %s in exchange, got %s", callbackBase, got)
		}
	})

	t.Run("Mismatched state", func(t *testing.T) {
		srv := tu.NewTokenServer(t)
		flow := NewFlowFromConfig(srv.Config(), true)

		_, err := flow.CompleteAuthorization(ctx, callback("other", tu.ValidCode), "expected")
		if !errors.Is(err, shared.ErrAuthMismatch) {
			t.Errorf("expected ErrAuthMismatch, got %v", err)
		}
		if srv.Calls() != 0 {
			t.Error("token endpoint must not be called on state mismatch")
		}
	})

	t.Run("Empty expected state", func(t *testing.T) {
		srv := tu.NewTokenServer(t)
		flow := NewFlowFromConfig(srv.Config(), true)
		_, err := flow.CompleteAuthorization(ctx, callback("", tu.ValidCode), "")
		if !errors.Is(err, shared.ErrAuthMismatch) {
			t.Errorf("expected ErrAuthMismatch, got %v", err)
		}
	})

	t.Run("Provider error", func(t *testing.T) {
		srv := tu.NewTokenServer(t)
		flow := NewFlowFromConfig(srv.Config(), true)
		_, err := flow.CompleteAuthorization(ctx, callback("s", "", "error", "access_denied"), "s")
		if !errors.Is(err, shared.ErrTokenExchange) {
			t.Errorf("expected ErrTokenExchange, got %v", err)
		}
	})

	t.Run("Missing code", func(t *testing.T) {
		srv := tu.NewTokenServer(t)
		flow := NewFlowFromConfig(srv.Config(), true)
		_, err := flow.CompleteAuthorization(ctx, callback("s", ""), "s")
		if !errors.Is(err, shared.ErrTokenExchange) {
			t.Errorf("expected ErrTokenExchange, got %v", err)
		}
	})

	t.Run("Rejected code", func(t *testing.T) {
		srv := tu.NewTokenServer(t)
		flow := NewFlowFromConfig(srv.Config(), true)
		_, err := flow.CompleteAuthorization(ctx, callback("s", "bad-code"), "s")
		if !errors.Is(err, shared.ErrTokenExchange) {
			t.Errorf("expected ErrTokenExchange, got %v", err)
		}
	})

	t.Run("No refresh token issued", func(t *testing.T) {
		srv := tu.NewTokenServer(t)
		srv.OmitRefreshToken = true
		flow := NewFlowFromConfig(srv.Config(), false)
		_, err := flow.CompleteAuthorization(ctx, callback("s", tu.ValidCode), "s")
		if !errors.Is(err, shared.ErrTokenExchange) {
			t.Errorf("expected ErrTokenExchange, got %v", err)
		}
	})

	t.Run("Unparseable callback", func(t *testing.T) {
		flow := NewFlowFromConfig(tu.NewTokenServer(t).Config(), true)
		_, err := flow.CompleteAuthorization(ctx, "://bad\x7f", "s")
		if !errors.Is(err, shared.ErrTokenExchange) {
			t.Errorf("expected ErrTokenExchange, got %v", err)
		}
	})
}

func TestNewFlow(t *testing.T) {
	t.Run("Inline client", func(t *testing.T) {
		flow, err := NewFlow(shared.GoogleConfig{
			ClientID:     "id.apps.googleusercontent.com",
			ClientSecret: "secret",
			RedirectURI:  callbackBase,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		c := flow.Config()
		if c.Endpoint.TokenURL != "https://oauth2.googleapis.com/token" {
			t.Errorf("expected google token endpoint, got %s", c.Endpoint.TokenURL)
		}
		if len(c.Scopes) != 1 || c.Scopes[0] != DefaultScopes[0] {
			t.Errorf("expected default scopes, got %v", c.Scopes)
		}
	})

	t.Run("Client secrets file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "client_secret.json")
		secrets := `{"web":{"client_id":"file-id","client_secret":"file-secret","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost:5000/oauth2callback"]}}`
		if err := os.WriteFile(path, []byte(secrets), 0o600); err != nil {
			t.Fatal(err)
		}

		flow, err := NewFlow(shared.GoogleConfig{ClientSecretsFile: path})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c := flow.Config(); c.ClientID != "file-id" || c.RedirectURL != callbackBase {
			t.Errorf("unexpected config %+v", c)
		}
	})

	t.Run("Missing client", func(t *testing.T) {
		_, err := NewFlow(shared.GoogleConfig{ClientID: "your_google_client_id", ClientSecret: "x"})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Unreadable secrets file", func(t *testing.T) {
		_, err := NewFlow(shared.GoogleConfig{ClientSecretsFile: filepath.Join(t.TempDir(), "missing.json")})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})
}

func TestStateStore(t *testing.T) {
	t.Run("Consume is single use", func(t *testing.T) {
		s := NewStateStore(0)
		s.Issue("session", "abc")

		got, ok := s.Consume("session")
		if !ok || got != "abc" {
			t.Fatalf("expected abc, got %q (%v)", got, ok)
		}
		if _, ok := s.Consume("session"); ok {
			t.Error("state should not be consumable twice")
		}
	})

	t.Run("Issue discards pending state", func(t *testing.T) {
		s := NewStateStore(0)
		s.Issue("session", "first")
		s.Issue("session", "second")
		if got, _ := s.Consume("session"); got != "second" {
			t.Errorf("expected second, got %q", got)
		}
	})

	t.Run("Expired state is absent", func(t *testing.T) {
		s := NewStateStore(time.Minute)
		now := time.Now()
		s.now = func() time.Time { return now }
		s.Issue("a", "x")
		s.Issue("b", "y")

		s.now = func() time.Time { return now.Add(2 * time.Minute) }
		if _, ok := s.Consume("a"); ok {
			t.Error("expired state should be absent")
		}
		if removed := s.Cleanup(); removed != 1 {
			t.Errorf("expected 1 removed, got %d", removed)
		}
		if s.Len() != 0 {
			t.Errorf("expected empty store, got %d", s.Len())
		}
	})

	t.Run("Sessions are isolated", func(t *testing.T) {
		s := NewStateStore(0)
		s.Issue("a", "x")
		if _, ok := s.Consume("b"); ok {
			t.Error("session b has no pending state")
		}
	})
}
