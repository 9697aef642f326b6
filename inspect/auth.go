package inspect

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// DefaultKeyHeader carries the API key on mutating requests.
const DefaultKeyHeader = "X-API-Key"

// KeyAuth admits requests whose API key hashes to one of a fixed set of
// SHA-256 digests. Keys are never held in plain text.
type KeyAuth struct {
	header string
	hashes [][]byte
}

// NewKeyAuth creates a KeyAuth from hex SHA-256 digests. An empty header
// means DefaultKeyHeader. Malformed digests are skipped.
func NewKeyAuth(header string, hexHashes ...string) *KeyAuth {
	if header == "" {
		header = DefaultKeyHeader
	}
	a := &KeyAuth{header: header}
	for _, h := range hexHashes {
		b, err := hex.DecodeString(strings.TrimSpace(h))
		if err != nil || len(b) != sha256.Size {
			continue
		}
		a.hashes = append(a.hashes, b)
	}
	return a
}

// HashKey returns the hex SHA-256 digest of key, the form NewKeyAuth expects.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Len returns the number of accepted digests.
func (a *KeyAuth) Len() int {
	return len(a.hashes)
}

// Allow reports whether r carries an accepted key. Every digest is compared
// so timing does not reveal which one matched.
func (a *KeyAuth) Allow(r *http.Request) bool {
	key := strings.TrimSpace(r.Header.Get(a.header))
	if key == "" {
		return false
	}
	sum := sha256.Sum256([]byte(key))
	ok := 0
	for _, h := range a.hashes {
		ok |= subtle.ConstantTimeCompare(sum[:], h)
	}
	return ok == 1
}

func (a *KeyAuth) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Allow(r) {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing or invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
