package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/docrelay/internal/shared"
	"golang.org/x/oauth2"
)

// Credential is the OAuth token set for one session.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	TokenURI     string    `json:"token_uri"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	Scopes       []string  `json:"scopes"`
	Expiry       time.Time `json:"expiry,omitzero"`
}

// Store persists one credential per session id.
type Store interface {
	// Save overwrites any credential stored for sessionID.
	Save(ctx context.Context, sessionID string, cred *Credential) error
	// Load returns (nil, false, nil) when nothing is stored.
	Load(ctx context.Context, sessionID string) (*Credential, bool, error)
	// Clear removes the credential; clearing an absent session is not an error.
	Clear(ctx context.Context, sessionID string) error
}

// FromToken builds a Credential from an exchanged token and the client that obtained it.
func FromToken(tok *oauth2.Token, config *oauth2.Config) *Credential {
	c := &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if config != nil {
		c.TokenURI = config.Endpoint.TokenURL
		c.ClientID = config.ClientID
		c.ClientSecret = config.ClientSecret
		c.Scopes = append([]string(nil), config.Scopes...)
	}
	return c
}

// Token converts the credential to an [oauth2.Token].
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}

// Refreshed returns a copy carrying the new access token. Google omits the
// refresh token on refresh responses, so the existing one is kept unless a new
// one is issued.
func (c *Credential) Refreshed(tok *oauth2.Token) *Credential {
	next := c.Clone()
	next.AccessToken = tok.AccessToken
	next.Expiry = tok.Expiry
	if tok.TokenType != "" {
		next.TokenType = tok.TokenType
	}
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	return next
}

// Clone returns a deep copy.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	next := *c
	next.Scopes = append([]string(nil), c.Scopes...)
	return &next
}

// Validate checks that the credential can outlive its access token.
func (c *Credential) Validate() error {
	if c == nil {
		return fmt.Errorf("credential is nil: %w", shared.ErrMissingCredentials)
	}
	if c.RefreshToken == "" {
		return fmt.Errorf("credential has no refresh token: %w", shared.ErrMissingCredentials)
	}
	if c.AccessToken == "" {
		return fmt.Errorf("credential has no access token: %w", shared.ErrMissingCredentials)
	}
	return nil
}

// Expired reports whether the access token can no longer be used.
func (c *Credential) Expired() bool {
	return !c.Token().Valid()
}
