package prober

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukemcguire/siteprobe/config"
)

func TestNewClient_StripsCredentialsOnCrossHostRedirect(t *testing.T) {
	var sameHostAuth, otherHostAuth, otherHostCustom string
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		otherHostAuth = r.Header.Get("Authorization")
		otherHostCustom = r.Header.Get("X-Env")
	}))
	defer other.Close()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/hop", http.StatusFound)
			return
		}
		sameHostAuth = r.Header.Get("Authorization")
		http.Redirect(w, r, other.URL+"/landing", http.StatusFound)
	}))
	defer origin.Close()

	cfg := config.Default()
	cfg.FollowRedirects = true
	cfg.BasicAuth = "alice:secret"
	cfg.Headers = []string{"X-Env: staging"}
	client := NewClient(cfg)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, origin.URL+"/start", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, sameHostAuth, "same-host redirect keeps credentials")
	assert.Empty(t, otherHostAuth, "cross-host redirect drops credentials")
	assert.Equal(t, "staging", otherHostCustom)
}

func TestRedirectPolicy(t *testing.T) {
	via := make([]*http.Request, MaxRedirects)

	assert.ErrorIs(t, redirectPolicy(false)(nil, via[:1]), http.ErrUseLastResponse)
	assert.NoError(t, redirectPolicy(true)(nil, via[:MaxRedirects-1]))
	err := redirectPolicy(true)(nil, via)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped after 10 redirects")
}

func TestSplitBasicAuth(t *testing.T) {
	user, pass := splitBasicAuth("user:pa:ss")
	assert.Equal(t, "user", user)
	assert.Equal(t, "pa:ss", pass)
}
