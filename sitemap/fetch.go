package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxDocumentSize caps a single sitemap after decompression. The sitemap
// protocol allows 50MB uncompressed.
const maxDocumentSize = 50 << 20

var gzipMagic = []byte{0x1f, 0x8b}

// fetch downloads rawURL and returns its (decompressed) body. Anything other
// than a 2xx response is an error.
func (r *Resolver) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request for %s: %w", rawURL, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	closeErr := resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("read body of %s: %w", rawURL, readErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close response body of %s: %w", rawURL, closeErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	if len(body) > maxDocumentSize {
		return nil, fmt.Errorf("fetch %s: document exceeds %d bytes", rawURL, maxDocumentSize)
	}

	if isGzip(rawURL, body) {
		body, err = gunzip(body)
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", rawURL, err)
		}
	}
	return body, nil
}

// isGzip reports whether body should be decompressed: either the URL path
// ends in .gz or the payload starts with the gzip magic bytes. Servers that
// set Content-Encoding: gzip are already handled by the transport.
func isGzip(rawURL string, body []byte) bool {
	if bytes.HasPrefix(body, gzipMagic) {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".gz") && len(body) > 0
}

func gunzip(body []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, maxDocumentSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxDocumentSize {
		return nil, fmt.Errorf("decompressed document exceeds %d bytes", maxDocumentSize)
	}
	return out, nil
}
