package credentials

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/ClubDues/internal/pkg/clock"
)

const (
	// DefaultStateTTL bounds how long an OAuth state stays valid.
	DefaultStateTTL = 10 * time.Minute

	stateSeparator = "."
	maxClockSkew   = time.Minute
)

var (
	ErrStateMalformed = errors.New("invalid state format")
	ErrStateSignature = errors.New("invalid state signature")
	ErrStateExpired   = errors.New("state expired")
)

// StateSigner signs and verifies the OAuth state that carries the tenant id
// through the provider's authorization redirect.
type StateSigner struct {
	secret []byte
	clock  clock.Clock
	ttl    time.Duration
}

func NewStateSigner(secret string, clk clock.Clock, ttl time.Duration) (*StateSigner, error) {
	if secret == "" {
		return nil, errors.New("secret is required for state signing")
	}
	if clk == nil {
		clk = clock.System{}
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateSigner{secret: []byte(secret), clock: clk, ttl: ttl}, nil
}

// TTL returns the validity window of signed states.
func (s *StateSigner) TTL() time.Duration {
	return s.ttl
}

// Sign returns tenantID.unixMillis.signature.
func (s *StateSigner) Sign(tenantID string) (string, error) {
	if tenantID == "" || strings.Contains(tenantID, stateSeparator) {
		return "", errors.New("tenant id must be non-empty and must not contain '.'")
	}
	payload := tenantID + stateSeparator + strconv.FormatInt(s.clock.Now().UnixMilli(), 10)
	return payload + stateSeparator + s.signature(payload), nil
}

// Verify checks the signature and age of state and returns its tenant id.
func (s *StateSigner) Verify(state string) (string, error) {
	parts := strings.Split(state, stateSeparator)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", ErrStateMalformed
	}
	tenantID, tsRaw, sig := parts[0], parts[1], parts[2]

	given, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", ErrStateMalformed
	}
	expected, _ := base64.RawURLEncoding.DecodeString(s.signature(tenantID + stateSeparator + tsRaw))
	if !hmac.Equal(given, expected) {
		return "", ErrStateSignature
	}

	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return "", ErrStateMalformed
	}
	issued := time.UnixMilli(ts)
	now := s.clock.Now()
	if issued.After(now.Add(maxClockSkew)) || now.Sub(issued) > s.ttl {
		return "", ErrStateExpired
	}
	return tenantID, nil
}

func (s *StateSigner) signature(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
