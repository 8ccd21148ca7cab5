package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/ClubDues/app/models"
	"github.com/ManuelReschke/ClubDues/internal/pkg/clock"
	"github.com/ManuelReschke/ClubDues/internal/pkg/env"
)

// SignatureHeader carries "ts=<unix>,v1=<hex hmac-sha256(secret, ts.body)>".
const SignatureHeader = "X-Webhook-Signature"

// SignatureTolerance bounds the distance between ts and the receive time.
const SignatureTolerance = 5 * time.Minute

var (
	ErrSignatureMissing   = errors.New("webhook signature missing")
	ErrSignatureMalformed = errors.New("webhook signature malformed")
	ErrSignatureMismatch  = errors.New("webhook signature mismatch")
	ErrSignatureExpired   = errors.New("webhook signature timestamp out of tolerance")
	ErrSecretMissing      = errors.New("webhook secret not configured")
)

// SignatureVerifier checks deliveries against per-provider secrets.
type SignatureVerifier struct {
	secrets       map[string]string
	clock         clock.Clock
	allowUnsigned bool
}

// NewSignatureVerifier builds a verifier. allowUnsigned accepts deliveries
// for providers without a configured secret.
func NewSignatureVerifier(secrets map[string]string, clk clock.Clock, allowUnsigned bool) *SignatureVerifier {
	if clk == nil {
		clk = clock.System{}
	}
	cp := make(map[string]string, len(secrets))
	for k, v := range secrets {
		if v = strings.TrimSpace(v); v != "" {
			cp[k] = v
		}
	}
	return &SignatureVerifier{secrets: cp, clock: clk, allowUnsigned: allowUnsigned}
}

// NewSignatureVerifierFromEnv reads *_WEBHOOK_SECRET. Unsigned deliveries are
// accepted only in dev.
func NewSignatureVerifierFromEnv(clk clock.Clock) *SignatureVerifier {
	return NewSignatureVerifier(map[string]string{
		models.ProviderMercadoPago: env.GetEnv("MERCADOPAGO_WEBHOOK_SECRET", ""),
		models.ProviderDLocal:      env.GetEnv("DLOCAL_WEBHOOK_SECRET", ""),
		models.ProviderMidtrans:    env.GetEnv("MIDTRANS_WEBHOOK_SECRET", ""),
	}, clk, env.IsDev())
}

// HasSecret reports whether deliveries for provider must be signed.
func (v *SignatureVerifier) HasSecret(provider string) bool {
	_, ok := v.secrets[provider]
	return ok
}

// Verify returns nil when the delivery is authentic or unsigned deliveries
// are allowed for a provider without secret.
func (v *SignatureVerifier) Verify(provider string, body []byte, header string) error {
	secret, ok := v.secrets[provider]
	if !ok {
		if v.allowUnsigned {
			return nil
		}
		return ErrSecretMissing
	}

	header = strings.TrimSpace(header)
	if header == "" {
		return ErrSignatureMissing
	}
	ts, sigs, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	now := v.clock.Now()
	sent := time.Unix(ts, 0)
	if now.Sub(sent) > SignatureTolerance || sent.Sub(now) > SignatureTolerance {
		return ErrSignatureExpired
	}

	expected := computeSignature(secret, ts, body)
	for _, sig := range sigs {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

// SignWebhook builds the header value for body, for senders and tests.
func SignWebhook(secret string, ts time.Time, body []byte) string {
	unix := ts.Unix()
	return "ts=" + strconv.FormatInt(unix, 10) + ",v1=" + hex.EncodeToString(computeSignature(secret, unix, body))
}

func computeSignature(secret string, ts int64, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

// parseSignatureHeader accepts several v1 entries to allow secret rotation.
func parseSignatureHeader(header string) (int64, [][]byte, error) {
	var ts int64
	var sigs [][]byte
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return 0, nil, ErrSignatureMalformed
		}
		switch k {
		case "ts":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return 0, nil, ErrSignatureMalformed
			}
			ts = n
		case "v1":
			raw, err := hex.DecodeString(strings.ToLower(val))
			if err != nil {
				return 0, nil, ErrSignatureMalformed
			}
			sigs = append(sigs, raw)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return 0, nil, ErrSignatureMalformed
	}
	return ts, sigs, nil
}
