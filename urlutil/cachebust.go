package urlutil

import (
	"math/rand/v2"
	"net/url"
	"strconv"
)

// CacheBusterParam is the query parameter appended by AppendCacheBuster.
const CacheBusterParam = "ts"

// cacheBusterDigits is the length of the random value, matching a Unix
// timestamp so the parameter looks familiar to origin logs.
const cacheBusterDigits = 10

// AppendCacheBuster appends a random numeric query parameter to rawURL so
// caches between the client and the origin treat every run as a miss.
// Existing query parameters and fragments are preserved.
func AppendCacheBuster(rawURL string) string {
	value := strconv.FormatUint(RandomDigits(cacheBusterDigits), 10)

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL + "?" + CacheBusterParam + "=" + value
	}

	param := CacheBusterParam + "=" + value
	if parsed.RawQuery == "" {
		parsed.RawQuery = param
	} else {
		parsed.RawQuery += "&" + param
	}
	return parsed.String()
}

// RandomDigits returns a random number with exactly n decimal digits.
// n is clamped to [1, 19] so the result fits in a uint64.
func RandomDigits(n int) uint64 {
	n = min(max(n, 1), 19)
	if n == 1 {
		return rand.Uint64N(10)
	}
	low := pow10(n - 1)
	return low + rand.Uint64N(pow10(n)-low)
}

func pow10(n int) uint64 {
	v := uint64(1)
	for range n {
		v *= 10
	}
	return v
}
