package identity

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
	"golang.org/x/crypto/blake2b"
)

// fingerprintHeaders are the signals mixed into the browser fingerprint,
// in order. Missing headers contribute an empty segment.
var fingerprintHeaders = []string{
	"User-Agent",
	"Accept-Language",
	"Accept-Encoding",
	"Connection",
	"DNT",
}

// fingerprintLen caps the encoded digest. 16 base64 characters is plenty for
// grouping and keeps counter keys short.
const fingerprintLen = 16

// Fingerprint computes a weak, deterministic digest of stable request
// headers. The same browser configuration on the same machine reproduces it;
// it is a heuristic grouping signal, not a security boundary, and its
// grouping behavior must not change silently.
func Fingerprint(h http.Header) string {
	parts := make([]string, len(fingerprintHeaders))
	for i, name := range fingerprintHeaders {
		parts[i] = h.Get(name)
	}
	sum := blake2b.Sum256([]byte(strings.Join(parts, "|")))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:fingerprintLen]
}

// IsBot classifies the caller's User-Agent as an automated client. Feeds
// audit attributes only; bots share the anonymous quota like everyone else.
func IsBot(h http.Header) bool {
	ua := h.Get("User-Agent")
	if ua == "" {
		return false
	}
	return useragent.New(ua).Bot()
}
