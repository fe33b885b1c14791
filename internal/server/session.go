package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/desertthunder/docrelay/internal/shared"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

const (
	sessionName   = "docrelay"
	sessionIDKey  = "sid"
	sessionMaxAge = 30 * 24 * 60 * 60
)

type sessionIDContextKey struct{}

// SessionManager keeps a browser's session id and flash messages in a signed cookie.
type SessionManager struct {
	store sessions.Store
	name  string
}

// NewSessionManager creates a cookie-backed SessionManager.
//
// An empty key generates a random one, so sessions do not survive a restart.
func NewSessionManager(key []byte, secure bool) *SessionManager {
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
	}

	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &SessionManager{store: store, name: sessionName}
}

// Middleware assigns a session id to every browser and exposes it through [SessionID].
func (m *SessionManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A cookie signed with an old key yields a fresh session and an error.
		session, _ := m.store.Get(r, m.name)

		sid, _ := session.Values[sessionIDKey].(string)
		if sid == "" {
			sid = shared.GenerateID()
			session.Values[sessionIDKey] = sid
			if err := session.Save(r, w); err != nil {
				http.Error(w, "Failed to start session", http.StatusInternalServerError)
				return
			}
		}

		ctx := context.WithValue(r.Context(), sessionIDContextKey{}, sid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionID returns the session id set by [SessionManager.Middleware].
func SessionID(ctx context.Context) string {
	sid, _ := ctx.Value(sessionIDContextKey{}).(string)
	return sid
}

// AddFlash queues messages for the next rendered page.
func (m *SessionManager) AddFlash(w http.ResponseWriter, r *http.Request, messages ...string) error {
	session, _ := m.store.Get(r, m.name)
	for _, msg := range messages {
		session.AddFlash(msg)
	}
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Flashes pops every queued message.
func (m *SessionManager) Flashes(w http.ResponseWriter, r *http.Request) []string {
	session, _ := m.store.Get(r, m.name)

	raw := session.Flashes()
	if len(raw) == 0 {
		return nil
	}

	messages := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			messages = append(messages, s)
		}
	}
	_ = session.Save(r, w)
	return messages
}
