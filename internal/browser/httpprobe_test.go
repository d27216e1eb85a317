package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cartwright/api/schemas"
)

func TestIsLoginURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/account", false},
		{"https://example.com/login?next=/account", true},
		{"https://example.com/ap/signin", true},
		{"https://example.com/sign-in", true},
		{"https://example.com/orders", false},
		{"https://auth.example.com/auth/realms/shop", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isLoginURL(tt.url), tt.url)
	}
}

func TestCookieHeader(t *testing.T) {
	assert.Empty(t, cookieHeader(nil))

	hdr := cookieHeader([]schemas.Cookie{
		{Name: "sid", Value: "abc"},
		{Name: "", Value: "dropped"},
		{Name: "pref", Value: "dark"},
	})
	assert.Equal(t, "sid=abc; pref=dark", hdr)
}

func TestPageHasPasswordField(t *testing.T) {
	login := `<html><body><form><input type="text" name="u"><input type="PASSWORD" name="p"></form></body></html>`
	account := `<html><body><h1>Your Orders</h1><input type="search"></body></html>`

	got, err := pageHasPasswordField(strings.NewReader(login))
	require.NoError(t, err)
	assert.True(t, got)

	got, err = pageHasPasswordField(strings.NewReader(account))
	require.NoError(t, err)
	assert.False(t, got)
}

// probeServer serves an account page when the session cookie is present and
// a login form otherwise, mirroring how retail sites gate account paths.
func probeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	handler := func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sid"); err == nil && c.Value == "valid" {
			w.Write([]byte(`<html><body><h1>Hello, Casey</h1><a href="/logout">Sign Out</a></body></html>`))
			return
		}
		http.Redirect(w, r, "/login", http.StatusFound)
	}
	mux.HandleFunc("/account", handler)
	mux.HandleFunc("/my-account", handler)
	mux.HandleFunc("/orders", handler)
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><form><input type="password"></form></body></html>`))
	})
	return httptest.NewServer(mux)
}

func TestAccountReachableWithValidCookies(t *testing.T) {
	srv := probeServer(t)
	defer srv.Close()

	p := NewHTTPProber(5*time.Second, zap.NewNop())
	p.client = srv.Client()
	p.client.Timeout = 5 * time.Second

	siteKey := strings.TrimPrefix(srv.URL, "http://")
	rewriteToServer(p.client, srv)

	reachable, redirected, err := p.AccountReachable(context.Background(), siteKey,
		[]schemas.Cookie{{Name: "sid", Value: "valid"}})
	require.NoError(t, err)
	assert.True(t, reachable)
	assert.False(t, redirected)
}

func TestAccountReachableBouncesToLogin(t *testing.T) {
	srv := probeServer(t)
	defer srv.Close()

	p := NewHTTPProber(5*time.Second, zap.NewNop())
	p.client = srv.Client()
	p.client.Timeout = 5 * time.Second

	siteKey := strings.TrimPrefix(srv.URL, "http://")
	rewriteToServer(p.client, srv)

	reachable, redirected, err := p.AccountReachable(context.Background(), siteKey, nil)
	require.NoError(t, err)
	assert.False(t, reachable)
	assert.True(t, redirected, "all probes landing on the login form is negative evidence")
}

// rewriteToServer downgrades the prober's https scheme to the plain-http
// test server.
func rewriteToServer(client *http.Client, srv *httptest.Server) {
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	client.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		req.URL.Scheme = "http"
		return base.RoundTrip(req)
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
