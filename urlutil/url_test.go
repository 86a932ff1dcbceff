package urlutil

import (
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsHTTPScheme(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"https://example.com", true},
		{"http://example.com/page", true},
		{"HTTPS://EXAMPLE.COM", true},
		{"ftp://example.com", false},
		{"mailto:someone@example.com", false},
		{"/relative/path", false},
		{"http://", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, IsHTTPScheme(tt.input))
		})
	}
}

func TestResolveReference(t *testing.T) {
	tests := []struct {
		name string
		base string
		ref  string
		want string
	}{
		{"absolute ref untouched", "https://example.com/sitemap.xml", "https://other.com/a", "https://other.com/a"},
		{"root relative", "https://example.com/maps/sitemap.xml", "/page", "https://example.com/page"},
		{"path relative", "https://example.com/maps/sitemap.xml", "child.xml", "https://example.com/maps/child.xml"},
		{"surrounding whitespace", "https://example.com/", "\n  https://example.com/a  \n", "https://example.com/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveReference(tt.base, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveReference_InvalidBase(t *testing.T) {
	_, err := ResolveReference("://bad", "/page")
	assert.Error(t, err)
}

func TestSameHost(t *testing.T) {
	assert.True(t, SameHost("https://example.com/a", "http://EXAMPLE.com/b"))
	assert.False(t, SameHost("https://example.com/a", "https://blog.example.com/a"))
	assert.False(t, SameHost("https://example.com:8080/a", "https://example.com/a"))
}

func TestAppendCacheBuster(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantPath  string
		wantQuery map[string]string
	}{
		{"no query", "https://example.com/page", "/page", nil},
		{"existing query kept", "https://example.com/page?lang=en", "/page", map[string]string{"lang": "en"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AppendCacheBuster(tt.input)
			parsed, err := url.Parse(got)
			require.NoError(t, err)

			assert.Equal(t, tt.wantPath, parsed.Path)
			query := parsed.Query()
			ts := query.Get(CacheBusterParam)
			assert.Len(t, ts, cacheBusterDigits)
			_, err = strconv.ParseUint(ts, 10, 64)
			assert.NoError(t, err)
			for k, v := range tt.wantQuery {
				assert.Equal(t, v, query.Get(k))
			}
		})
	}
}

func TestAppendCacheBuster_Varies(t *testing.T) {
	seen := make(map[string]bool)
	for range 20 {
		seen[AppendCacheBuster("https://example.com/")] = true
	}
	assert.Greater(t, len(seen), 1, "expected different cache busters across calls")
}

func TestRandomDigits(t *testing.T) {
	for _, n := range []int{1, 4, 10, 19} {
		got := strconv.FormatUint(RandomDigits(n), 10)
		assert.Len(t, got, n, "RandomDigits(%d) = %s", n, got)
	}
	assert.Len(t, strconv.FormatUint(RandomDigits(0), 10), 1)
	assert.False(t, strings.HasPrefix(strconv.FormatUint(RandomDigits(5), 10), "0"))
}
