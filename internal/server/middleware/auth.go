package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/adcal/slotmarket/internal/crypto"
)

// SignatureHeader carries the hex-encoded signature over the request
// envelope (method, path, nonce, body).
const SignatureHeader = "X-Caller-Signature"

// NonceHeader carries the single-use request nonce: the caller's Unix
// timestamp in seconds, a dash, and an arbitrary unique suffix.
const NonceHeader = "X-Caller-Nonce"

// signatureTTL bounds how far a nonce timestamp may drift from server time.
// A nonce is also remembered, and rejected on reuse, for this long.
const signatureTTL = 5 * time.Minute

// maxBodySize bounds how much of a signed request body is read (1 MiB).
const maxBodySize = 1 << 20

type callerKey struct{}

// CallerFrom returns the authenticated caller address stored by SignatureAuth.
func CallerFrom(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}

// WithCaller returns a context carrying the given caller address. Exposed for
// handler tests.
func WithCaller(ctx context.Context, caller common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// nonceCache remembers which nonces have authenticated a request within the
// freshness window, so a captured frame cannot be replayed verbatim.
type nonceCache struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newNonceCache() *nonceCache {
	return &nonceCache{seen: make(map[string]time.Time)}
}

// markUsed records the nonce, reporting false when it was already spent.
// Expired entries are pruned on the way in.
func (c *nonceCache) markUsed(nonce string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for n, at := range c.seen {
		if now.Sub(at) > signatureTTL {
			delete(c.seen, n)
		}
	}
	if _, dup := c.seen[nonce]; dup {
		return false
	}
	c.seen[nonce] = now
	return true
}

// checkNonce validates the timestamp prefix of a nonce against server time.
func checkNonce(nonce string, now time.Time) bool {
	ts, _, ok := strings.Cut(nonce, "-")
	if !ok {
		return false
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	drift := now.Sub(time.Unix(sec, 0))
	return drift >= -signatureTTL && drift <= signatureTTL
}

// SignatureAuth returns middleware that authenticates mutating requests by
// recovering the secp256k1 address that signed the request envelope: method,
// path, a single-use nonce, and the body. The recovered address becomes the
// caller of the market operation. Stale and reused nonces are rejected, so a
// captured signed frame cannot be replayed. Read-only requests pass through
// unauthenticated; requests that carry a signature get a caller either way.
func SignatureAuth() func(http.Handler) http.Handler {
	nonces := newNonceCache()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sig := r.Header.Get(SignatureHeader)
			if sig == "" {
				if mutating(r.Method) {
					writeUnauthorized(w, "missing "+SignatureHeader+" header")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			nonce := r.Header.Get(NonceHeader)
			if nonce == "" {
				writeUnauthorized(w, "missing "+NonceHeader+" header")
				return
			}
			if !checkNonce(nonce, now) {
				writeUnauthorized(w, "stale or malformed nonce")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
			if err != nil {
				writeUnauthorized(w, "unreadable request body")
				return
			}
			r.Body.Close()
			// Hand the body back to the handler.
			r.Body = io.NopCloser(bytes.NewReader(body))

			payload := crypto.RequestPayload(r.Method, r.URL.Path, nonce, body)
			caller, err := crypto.RecoverCaller(payload, sig)
			if err != nil {
				writeUnauthorized(w, "invalid signature")
				return
			}

			// Spend the nonce only after the signature checks out, so a
			// garbled request cannot burn a nonce the caller still needs.
			if !nonces.markUsed(nonce, now) {
				writeUnauthorized(w, "nonce already used")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
