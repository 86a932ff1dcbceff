package report

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// ErrorCategory classifies why an attempt produced no HTTP response.
type ErrorCategory string

const (
	CategoryTimeout           ErrorCategory = "timeout"
	CategoryDNSFailure        ErrorCategory = "dns_failure"
	CategoryConnectionRefused ErrorCategory = "connection_refused"
	CategoryConnectionFailure ErrorCategory = "connection_failure"
	CategoryRedirectLoop      ErrorCategory = "redirect_loop"
	CategoryInvalidRequest    ErrorCategory = "invalid_request"
)

// ClassifyError determines the category of a transport error returned by
// http.Client.Do or request construction. Timeouts win over every other
// classification because a deadline can surface wrapped in a net.OpError.
func ClassifyError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CategoryDNSFailure
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return CategoryConnectionRefused
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" && strings.Contains(opErr.Error(), "connection refused") {
			return CategoryConnectionRefused
		}
		return CategoryConnectionFailure
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, net.ErrClosed) {
		return CategoryConnectionFailure
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && strings.Contains(urlErr.Err.Error(), "stopped after") {
		return CategoryRedirectLoop
	}
	if errors.As(err, &urlErr) && isConnectionLevel(urlErr.Err) {
		return CategoryConnectionFailure
	}

	return CategoryInvalidRequest
}

// isConnectionLevel catches failures that happen after dialing but before a
// response arrives, such as TLS handshake errors and unexpected EOFs.
func isConnectionLevel(err error) bool {
	msg := err.Error()
	for _, pattern := range []string{"EOF", "tls:", "x509:", "connection reset", "broken pipe", "server closed"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// SyntheticStatus maps a category onto the status code recorded in the
// Outcome: 408 for timeouts, 502 for connection failures and 400 for
// anything wrong with the request itself.
func SyntheticStatus(cat ErrorCategory) int {
	switch cat {
	case CategoryTimeout:
		return StatusTimeout
	case CategoryDNSFailure, CategoryConnectionRefused, CategoryConnectionFailure:
		return StatusConnectionError
	default:
		return StatusBadRequest
	}
}

// FormatCategory returns a human-readable label for a category.
func FormatCategory(cat ErrorCategory) string {
	switch cat {
	case CategoryTimeout:
		return "Timeout"
	case CategoryDNSFailure:
		return "DNS Failure"
	case CategoryConnectionRefused:
		return "Connection Refused"
	case CategoryConnectionFailure:
		return "Connection Failure"
	case CategoryRedirectLoop:
		return "Too Many Redirects"
	case CategoryInvalidRequest:
		return "Invalid Request"
	default:
		return ""
	}
}
