package portalsdk

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultExpiryMargin is the safety window subtracted from a token's real
// expiry. A request started inside the margin triggers a refresh first so it
// cannot race the clock mid-flight.
const DefaultExpiryMargin = 60 * time.Second

// errNoExpiry reports an access token without an "exp" claim.
var errNoExpiry = errors.New("token has no exp claim")

// tokenStore holds the access token shared by every outgoing request.
// Reads are concurrent; the refresh coordinator is the only writer once a
// session is established (see refresh.go).
type tokenStore struct {
	mu     sync.RWMutex
	access string
}

func newTokenStore() *tokenStore { return &tokenStore{} }

func (s *tokenStore) get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

func (s *tokenStore) set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = token
}

func (s *tokenStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
}

// tokenExpiry extracts the expiry claim from a bearer token without
// verifying the signature. Verification is the backend's job; the client
// only needs the deadline to decide when to refresh.
func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, errNoExpiry
	}

	return exp.Time, nil
}

// TokenUsable reports whether token is present and not yet expired at now.
// Tokens that cannot be decoded count as expired.
func TokenUsable(token string, now time.Time) bool {
	exp, err := tokenExpiry(token)
	if err != nil {
		return false
	}
	return now.Before(exp)
}

// TokenExpiringSoon reports whether token expires within margin of now.
// Tokens that cannot be decoded count as already expired.
func TokenExpiringSoon(token string, margin time.Duration, now time.Time) bool {
	exp, err := tokenExpiry(token)
	if err != nil {
		return true
	}
	return !now.Add(margin).Before(exp)
}
