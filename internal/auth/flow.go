package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/desertthunder/docrelay/internal/credentials"
	"github.com/desertthunder/docrelay/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultScopes requests read-only Drive access.
var DefaultScopes = []string{"https://www.googleapis.com/auth/drive.readonly"}

// Flow performs the authorization-code handshake for one OAuth client.
type Flow struct {
	config       *oauth2.Config
	forceConsent bool
}

// NewFlow builds a Flow from configuration. A client secrets file, when set,
// takes precedence over the inline client id and secret.
func NewFlow(cfg shared.GoogleConfig) (*Flow, error) {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	var config *oauth2.Config
	switch {
	case cfg.ClientSecretsFile != "":
		data, err := os.ReadFile(cfg.ClientSecretsFile)
		if err != nil {
			return nil, fmt.Errorf("%w: reading client secrets: %v", shared.ErrMissingCredentials, err)
		}
		config, err = google.ConfigFromJSON(data, scopes...)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing client secrets: %v", shared.ErrInvalidConfig, err)
		}
		if cfg.RedirectURI != "" {
			config.RedirectURL = cfg.RedirectURI
		}
	case cfg.HasClient():
		config = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		}
	default:
		return nil, fmt.Errorf("%w: set google.client_id and google.client_secret or google.client_secrets_file", shared.ErrMissingCredentials)
	}

	return NewFlowFromConfig(config, cfg.ForceConsent), nil
}

// NewFlowFromConfig wraps an existing client configuration.
func NewFlowFromConfig(config *oauth2.Config, forceConsent bool) *Flow {
	return &Flow{config: config, forceConsent: forceConsent}
}

// Config returns a copy of the client configuration.
func (f *Flow) Config() *oauth2.Config {
	c := *f.config
	c.Scopes = append([]string(nil), f.config.Scopes...)
	return &c
}

// BeginAuthorization returns the consent URL and the state the callback must echo.
// Empty scopes or redirectURI fall back to the configured values.
func (f *Flow) BeginAuthorization(scopes []string, redirectURI string) (authURL, state string, err error) {
	state, err = GenerateState()
	if err != nil {
		return "", "", err
	}

	config := f.configFor(scopes, redirectURI)
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	}
	if f.forceConsent {
		opts = append(opts, oauth2.ApprovalForce)
	}

	return config.AuthCodeURL(state, opts...), state, nil
}

// CompleteAuthorization validates the callback and exchanges its code for a credential.
//
// The redirect URI sent to the token endpoint is the callback URL without its query.
func (f *Flow) CompleteAuthorization(ctx context.Context, callbackURL, expectedState string) (*credentials.Credential, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid callback URL: %v", shared.ErrTokenExchange, err)
	}
	q := u.Query()

	got := q.Get("state")
	if expectedState == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expectedState)) != 1 {
		return nil, shared.ErrAuthMismatch
	}

	if providerErr := q.Get("error"); providerErr != "" {
		return nil, fmt.Errorf("%w: provider returned %s: %s", shared.ErrTokenExchange, providerErr, q.Get("error_description"))
	}

	code := q.Get("code")
	if code == "" {
		return nil, fmt.Errorf("%w: callback has no authorization code", shared.ErrTokenExchange)
	}

	redirect := *u
	redirect.RawQuery = ""
	redirect.Fragment = ""

	config := f.configFor(nil, redirect.String())
	tok, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrTokenExchange, err)
	}
	if tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: provider issued no refresh token; revoke access and authorize again", shared.ErrTokenExchange)
	}

	cred := credentials.FromToken(tok, config)
	if granted, ok := tok.Extra("scope").(string); ok && granted != "" {
		cred.Scopes = strings.Fields(granted)
	}
	return cred, nil
}

func (f *Flow) configFor(scopes []string, redirectURI string) *oauth2.Config {
	c := f.Config()
	if len(scopes) > 0 {
		c.Scopes = append([]string(nil), scopes...)
	}
	if redirectURI != "" {
		c.RedirectURL = redirectURI
	}
	return c
}

// GenerateState returns 32 hex characters from crypto/rand.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
