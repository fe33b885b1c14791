package server

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/docrelay/internal/auth"
	"github.com/desertthunder/docrelay/internal/shared"
	tu "github.com/desertthunder/docrelay/internal/testing"
)

type routesHandler struct {
	routes []string
	hits   int
}

func (h *routesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.hits++
	w.WriteHeader(http.StatusNoContent)
}

func (h *routesHandler) Routes() []string { return h.routes }

func TestBasicRouter(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok " + r.PathValue("id")))
	})

	t.Run("Handle matches method and path", func(t *testing.T) {
		r := NewBasicRouter()
		r.Handle(http.MethodGet, "/items/{id}", ok)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "ok 42" {
			t.Errorf("got %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("wrong method is rejected", func(t *testing.T) {
		r := NewBasicRouter()
		r.Handle(http.MethodPost, "/submit", ok)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/submit", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})

	t.Run("middleware runs in the order added", func(t *testing.T) {
		var order []string
		mw := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		r := NewBasicRouter()
		r.Use(mw("first"), mw("second"))
		r.Handle(http.MethodGet, "/", ok)
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		if strings.Join(order, ",") != "first,second" {
			t.Errorf("order = %v", order)
		}
	})

	t.Run("Handler registers every route", func(t *testing.T) {
		h := &routesHandler{routes: []string{"/a", "/b"}}
		r := NewBasicRouter()
		r.Handler(h)

		for _, path := range []string{"/a", "/b"} {
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
		}
		if h.hits != 2 {
			t.Errorf("hits = %d, want 2", h.hits)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("Logging records status", func(t *testing.T) {
		var buf bytes.Buffer
		h := Logging(shared.NewLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))
		if !strings.Contains(buf.String(), "status=418") || !strings.Contains(buf.String(), "path=/brew") {
			t.Errorf("log = %q", buf.String())
		}
	})

	t.Run("Recover returns 500", func(t *testing.T) {
		var buf bytes.Buffer
		h := Recover(shared.NewLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
		if !strings.Contains(buf.String(), "boom") {
			t.Errorf("log = %q", buf.String())
		}
	})
}

func TestSessionManager(t *testing.T) {
	m := NewSessionManager([]byte("0123456789abcdef0123456789abcdef"), false)

	var seen []string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, SessionID(r.Context()))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("no session cookie set")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	h.ServeHTTP(httptest.NewRecorder(), req)

	if len(seen) != 2 || seen[0] == "" || seen[0] != seen[1] {
		t.Errorf("session ids = %v, want the same non-empty id twice", seen)
	}

	t.Run("foreign cookie starts a new session", func(t *testing.T) {
		other := NewSessionManager([]byte("fedcba9876543210fedcba9876543210"), false)
		var sid string
		h := other.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid = SessionID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookies[0])
		h.ServeHTTP(httptest.NewRecorder(), req)
		if sid == "" || sid == seen[0] {
			t.Errorf("sid = %q, want a fresh id", sid)
		}
	})

	t.Run("flashes are popped once", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if err := m.AddFlash(rec, req, "one", "two"); err != nil {
			t.Fatal(err)
		}

		req = httptest.NewRequest(http.MethodGet, "/", nil)
		for _, c := range rec.Result().Cookies() {
			req.AddCookie(c)
		}
		rec = httptest.NewRecorder()
		if got := m.Flashes(rec, req); strings.Join(got, ",") != "one,two" {
			t.Errorf("Flashes() = %v", got)
		}

		req = httptest.NewRequest(http.MethodGet, "/", nil)
		for _, c := range rec.Result().Cookies() {
			req.AddCookie(c)
		}
		if got := m.Flashes(httptest.NewRecorder(), req); len(got) != 0 {
			t.Errorf("second Flashes() = %v, want none", got)
		}
	})
}

func TestCallbackHandler(t *testing.T) {
	const redirect = "http://localhost:5000/oauth2callback"
	srv := tu.NewTokenServer(t)
	flow := auth.NewFlowFromConfig(srv.Config(), false)

	t.Run("Routes uses redirect path", func(t *testing.T) {
		h, err := NewCallbackHandler(flow, redirect, "s")
		if err != nil {
			t.Fatal(err)
		}
		if got := h.Routes(); len(got) != 1 || got[0] != "/oauth2callback" {
			t.Errorf("Routes() = %v", got)
		}
	})

	t.Run("invalid redirect URI", func(t *testing.T) {
		if _, err := NewCallbackHandler(flow, "not a url", "s"); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("error = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("success delivers credential once", func(t *testing.T) {
		h, _ := NewCallbackHandler(flow, redirect, "state-1")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth2callback?state=state-1&code="+tu.ValidCode, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
		}

		result := <-h.Result()
		if result.Error() != nil {
			t.Fatalf("result error = %v", result.Error())
		}
		if result.Credential.RefreshToken != "refresh-token" {
			t.Errorf("RefreshToken = %q", result.Credential.RefreshToken)
		}
		if _, open := <-h.Result(); open {
			t.Error("result channel not closed")
		}

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth2callback?state=state-1&code="+tu.ValidCode, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("replay status = %d, want 400", rec.Code)
		}
	})

	t.Run("state mismatch", func(t *testing.T) {
		h, _ := NewCallbackHandler(flow, redirect, "state-1")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth2callback?state=forged&code="+tu.ValidCode, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
		res := <-h.Result()
		if err := res.Error(); !errors.Is(err, shared.ErrAuthMismatch) {
			t.Errorf("error = %v, want ErrAuthMismatch", err)
		}
	})

	t.Run("provider denial", func(t *testing.T) {
		h, _ := NewCallbackHandler(flow, redirect, "state-1")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth2callback?state=state-1&error=access_denied", nil))
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", rec.Code)
		}
		res := <-h.Result()
		if err := res.Error(); !errors.Is(err, shared.ErrTokenExchange) {
			t.Errorf("error = %v, want ErrTokenExchange", err)
		}
	})
}

func TestServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, ln, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("up"))
		}), shared.NewLogger(&bytes.Buffer{}))
	}()

	resp, err := http.Get("http://" + ln.Addr().String())
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
