package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ClubDues/app/models"
	"github.com/ManuelReschke/ClubDues/app/repository"
	"github.com/ManuelReschke/ClubDues/internal/pkg/apperr"
	"github.com/ManuelReschke/ClubDues/internal/pkg/clock"
	"github.com/ManuelReschke/ClubDues/internal/pkg/notify"
)

func delivery(t *testing.T, p WebhookPayload) WebhookDelivery {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return WebhookDelivery{Payload: p, Raw: raw, DeliveryID: p.ProviderPaymentID, SignatureValid: true}
}

type recordingArchiver struct {
	mu   sync.Mutex
	keys []string
}

func (a *recordingArchiver) Archive(_ context.Context, provider, deliveryID string, _ time.Time, _ []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, provider+"/"+deliveryID)
	return nil
}

func suspendedMember(f *fixture) {
	f.store.AddMember(models.Member{
		ID: "P1", TenantID: "S1", FirstName: "Juan", LastName: "Pérez", Email: "p1@example.com",
		Status: models.MemberStatusSuspended, CreatedAt: day(2024, 1, 1),
	})
}

func TestWebhookReplayIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	suspendedMember(f)
	archiver := &recordingArchiver{}
	w := NewWebhookProcessor(f.ledger, f.repos.Member, f.repos.WebhookEvent, f.dispatcher, archiver, f.clock)
	d := delivery(t, validWebhookPayload())

	first, err := w.Process(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	for i := 0; i < 4; i++ {
		res, err := w.Process(context.Background(), d)
		require.NoError(t, err)
		assert.True(t, res.Duplicate)
		assert.Equal(t, first.PaymentID, res.PaymentID)
	}

	payments := f.store.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentStatusApproved, payments[0].Status)
	require.NotNil(t, payments[0].PaidAt)
	assert.True(t, today.Equal(*payments[0].PaidAt))

	m, _ := f.store.Member("S1", "P1")
	assert.Equal(t, models.MemberStatusActive, m.Status)
	assert.Equal(t, 1, f.relay.ofType(models.EmailTypePaymentReceipt))
	assert.Len(t, f.store.EmailEvents(), 1)

	events := f.store.WebhookEvents()
	require.Len(t, events, 1)
	assert.Equal(t, models.WebhookOutcomeDuplicate, events[0].Outcome)
	assert.Equal(t, []string{"mercadopago/mp-1"}, archiver.keys)
}

func TestWebhookForgedDeliveryDoesNotTakeAuditSlot(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	suspendedMember(f)
	archiver := &recordingArchiver{}
	w := NewWebhookProcessor(f.ledger, f.repos.Member, f.repos.WebhookEvent, f.dispatcher, archiver, f.clock)

	forged := delivery(t, validWebhookPayload())
	forged.SignatureValid = false
	_, err := w.Process(context.Background(), forged)
	require.Error(t, err)
	assert.Empty(t, archiver.keys)

	res, err := w.Process(context.Background(), delivery(t, validWebhookPayload()))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, []string{"mercadopago/mp-1"}, archiver.keys)

	events := f.store.WebhookEvents()
	require.Len(t, events, 2)
	outcomes := map[string]string{}
	for _, e := range events {
		outcomes[e.DeliveryID] = e.Outcome
	}
	assert.Equal(t, models.WebhookOutcomeRejected, outcomes["unverified:mp-1"])
	assert.Equal(t, models.WebhookOutcomeRecorded, outcomes["mp-1"])
}

func TestWebhookConcurrentDeliveries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	suspendedMember(f)
	w := f.webhooks()
	d := delivery(t, validWebhookPayload())

	var wg sync.WaitGroup
	var mu sync.Mutex
	recorded := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := w.Process(context.Background(), d)
			if !assert.NoError(t, err) {
				return
			}
			if !res.Duplicate {
				mu.Lock()
				recorded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, recorded)
	assert.Len(t, f.store.Payments(), 1)
	assert.Len(t, f.store.EmailEvents(), 1)
}

func TestWebhookConcurrentDistinctPaymentsSamePeriod(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	suspendedMember(f)
	w := f.webhooks()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		p := validWebhookPayload()
		p.ProviderPaymentID = fmt.Sprintf("mp-%d", i)
		d := delivery(t, p)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Process(context.Background(), d)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	approved := 0
	for _, p := range f.store.Payments() {
		if p.IsApproved() && p.Period == "2024-05" {
			approved++
		}
	}
	assert.Equal(t, 1, approved)
}

func TestWebhookPeriodPaidElsewhereIsAcknowledged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	suspendedMember(f)
	f.pay(t, "P1", "2024-05")

	res, err := f.webhooks().Process(context.Background(), delivery(t, validWebhookPayload()))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Len(t, f.store.Payments(), 1)

	m, _ := f.store.Member("S1", "P1")
	assert.Equal(t, models.MemberStatusSuspended, m.Status)
}

func TestWebhookRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(d *WebhookDelivery)
		status  int
		code    string
		outcome string
	}{
		{
			name:    "bad signature",
			mutate:  func(d *WebhookDelivery) { d.SignatureValid = false },
			status:  401,
			code:    "invalid_signature",
			outcome: models.WebhookOutcomeRejected,
		},
		{
			name:    "pending status",
			mutate:  func(d *WebhookDelivery) { d.Payload.Status = "pending" },
			status:  400,
			code:    "invalid_request",
			outcome: models.WebhookOutcomeRejected,
		},
		{
			name:    "member of another tenant",
			mutate:  func(d *WebhookDelivery) { d.Payload.TenantID = "S2" },
			status:  400,
			code:    "invalid_request",
			outcome: models.WebhookOutcomeRejected,
		},
		{
			name:    "zero amount",
			mutate:  func(d *WebhookDelivery) { d.Payload.Amount = decimal.Zero },
			status:  400,
			code:    "invalid_request",
			outcome: models.WebhookOutcomeRejected,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			suspendedMember(f)
			d := delivery(t, validWebhookPayload())
			tc.mutate(&d)

			_, err := f.webhooks().Process(context.Background(), d)
			require.Error(t, err)
			assert.Equal(t, tc.status, apperr.HTTPStatus(err))
			assert.Equal(t, tc.code, apperr.Code(err))
			assert.Empty(t, f.store.Payments())
			assert.Zero(t, f.relay.ofType(models.EmailTypePaymentReceipt))

			events := f.store.WebhookEvents()
			require.Len(t, events, 1)
			assert.Equal(t, tc.outcome, events[0].Outcome)
		})
	}
}

func TestWebhookReceiptFailureDoesNotFail(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	suspendedMember(f)
	w := NewWebhookProcessor(f.ledger, f.repos.Member, f.repos.WebhookEvent, failingNotifier{}, nil, f.clock)

	res, err := w.Process(context.Background(), delivery(t, validWebhookPayload()))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Len(t, f.store.Payments(), 1)
}

func TestSignatureVerifier(t *testing.T) {
	t.Parallel()

	body := []byte(`{"provider":"dlocal"}`)
	now := time.Unix(1718460000, 0)
	v := NewSignatureVerifier(map[string]string{models.ProviderDLocal: "whsec"}, clock.Fixed(now), false)

	tests := []struct {
		name     string
		provider string
		header   string
		want     error
	}{
		{name: "valid", provider: "dlocal", header: SignWebhook("whsec", now, body)},
		{name: "clock skew within tolerance", provider: "dlocal", header: SignWebhook("whsec", now.Add(-4*time.Minute), body)},
		{name: "rotated secrets", provider: "dlocal", header: SignWebhook("whsec", now, body) + ",v1=00ff"},
		{name: "stale", provider: "dlocal", header: SignWebhook("whsec", now.Add(-6*time.Minute), body), want: ErrSignatureExpired},
		{name: "wrong secret", provider: "dlocal", header: SignWebhook("other", now, body), want: ErrSignatureMismatch},
		{name: "missing", provider: "dlocal", header: "", want: ErrSignatureMissing},
		{name: "garbage", provider: "dlocal", header: "sha256=abc", want: ErrSignatureMalformed},
		{name: "no secret configured", provider: "midtrans", header: "", want: ErrSecretMissing},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := v.Verify(tc.provider, body, tc.header)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}

	dev := NewSignatureVerifier(nil, clock.Fixed(now), true)
	assert.NoError(t, dev.Verify("midtrans", body, ""))
	assert.False(t, dev.HasSecret("midtrans"))
	assert.Error(t, v.Verify("dlocal", []byte(`{"provider":"dlocal","x":1}`), SignWebhook("whsec", now, body)))
}

// flakyMembers fails the first n status updates.
type flakyMembers struct {
	repository.MemberRepository
	mu    sync.Mutex
	fails int
}

func (m *flakyMembers) SetStatus(ctx context.Context, tenantID, memberID, status string) error {
	m.mu.Lock()
	if m.fails > 0 {
		m.fails--
		m.mu.Unlock()
		return errors.New("connection reset")
	}
	m.mu.Unlock()
	return m.MemberRepository.SetStatus(ctx, tenantID, memberID, status)
}

func TestWebhookRedeliveryCompletesReactivation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	suspendedMember(f)
	members := &flakyMembers{MemberRepository: f.repos.Member, fails: 1}
	w := NewWebhookProcessor(f.ledger, members, f.repos.WebhookEvent, f.dispatcher, nil, f.clock)
	d := delivery(t, validWebhookPayload())

	_, err := w.Process(context.Background(), d)
	require.Error(t, err)
	assert.Equal(t, 503, apperr.HTTPStatus(err), "provider must redeliver")
	require.Len(t, f.store.Payments(), 1)
	m, _ := f.store.Member("S1", "P1")
	assert.Equal(t, models.MemberStatusSuspended, m.Status)

	res, err := w.Process(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Len(t, f.store.Payments(), 1)
	m, _ = f.store.Member("S1", "P1")
	assert.Equal(t, models.MemberStatusActive, m.Status)
	assert.Equal(t, 1, f.relay.ofType(models.EmailTypePaymentReceipt))

	_, err = w.Process(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 1, f.relay.ofType(models.EmailTypePaymentReceipt))
}

func TestWebhookReplayKeepsLaterSuspension(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	suspendedMember(f)
	w := f.webhooks()
	d := delivery(t, validWebhookPayload())

	_, err := w.Process(context.Background(), d)
	require.NoError(t, err)
	// Suspended again by dunning after the payment was recorded.
	m, _ := f.store.Member("S1", "P1")
	m.Status = models.MemberStatusSuspended
	m.UpdatedAt = time.Now().Add(time.Hour)
	f.store.AddMember(m)

	res, err := w.Process(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	m, _ = f.store.Member("S1", "P1")
	assert.Equal(t, models.MemberStatusSuspended, m.Status)
}

type failingNotifier struct{}

func (failingNotifier) Send(context.Context, notify.EmailEventInput) (bool, error) {
	return false, errors.New("relay down")
}
