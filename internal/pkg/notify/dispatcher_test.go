package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ClubDues/app/models"
	"github.com/ManuelReschke/ClubDues/app/repository/memstore"
	"github.com/ManuelReschke/ClubDues/internal/pkg/clock"
)

type fakeRelay struct {
	mu     sync.Mutex
	emails []Email
	err    error
}

func (f *fakeRelay) Enqueue(_ context.Context, email Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.emails = append(f.emails, email)
	return nil
}

func (f *fakeRelay) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.emails)
}

var sentAt = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

func newDispatcher(t *testing.T, relay Relay) (*Dispatcher, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	d, err := NewDispatcher(store.Repositories().EmailEvent, relay, clock.Fixed(sentAt))
	require.NoError(t, err)
	return d, store
}

func receipt() EmailEventInput {
	return EmailEventInput{
		Type:     models.EmailTypePaymentReceipt,
		TenantID: "S1",
		MemberID: "P1",
		Period:   "2024-05",
		To:       "parent@example.com",
		Content:  Content{MemberName: "Pérez Juan", Amount: "15000.00", Currency: "ARS", Provider: "mercadopago"},
	}
}

func TestSendIsIdempotent(t *testing.T) {
	t.Parallel()

	relay := &fakeRelay{}
	d, store := newDispatcher(t, relay)

	sent, err := d.Send(context.Background(), receipt())
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = d.Send(context.Background(), receipt())
	require.NoError(t, err)
	assert.False(t, sent)

	assert.Equal(t, 1, relay.count())
	events := store.EmailEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "payment_receipt:P1:2024-05", events[0].IdempotencyKey)
	assert.True(t, sentAt.Equal(events[0].SentAt))

	email := relay.emails[0]
	assert.Equal(t, "parent@example.com", email.To)
	assert.Equal(t, "payment_receipt:P1:2024-05", email.IdempotencyKey)
	assert.Contains(t, email.HTMLBody, "Pérez Juan")
	assert.Contains(t, email.HTMLBody, "15000.00 ARS")
	assert.Contains(t, email.HTMLBody, "05/2024")
	assert.Contains(t, email.HTMLBody, "<html")
}

func TestSendConcurrentRecordsOnce(t *testing.T) {
	t.Parallel()

	relay := &fakeRelay{}
	d, store := newDispatcher(t, relay)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Send(context.Background(), receipt())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, store.EmailEvents(), 1)
	assert.GreaterOrEqual(t, relay.count(), 1)
}

func TestSendEnqueueFailureRecordsNothing(t *testing.T) {
	t.Parallel()

	relay := &fakeRelay{err: errors.New("redis down")}
	d, store := newDispatcher(t, relay)

	sent, err := d.Send(context.Background(), receipt())
	assert.Error(t, err)
	assert.False(t, sent)
	assert.Empty(t, store.EmailEvents())

	relay.err = nil
	sent, err = d.Send(context.Background(), receipt())
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestSendSkipsMissingRecipientAndUnknownType(t *testing.T) {
	t.Parallel()

	relay := &fakeRelay{}
	d, store := newDispatcher(t, relay)

	in := receipt()
	in.To = " "
	sent, err := d.Send(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, sent)

	in = receipt()
	in.Type = "welcome"
	_, err = d.Send(context.Background(), in)
	assert.Error(t, err)

	assert.Zero(t, relay.count())
	assert.Empty(t, store.EmailEvents())
}

func TestRenderTemplates(t *testing.T) {
	t.Parallel()

	d, _ := newDispatcher(t, &fakeRelay{})
	tests := []struct {
		emailType string
		period    string
		want      []string
	}{
		{models.EmailTypeDelinquencyReminder, "2024-05", []string{"36 días", "2024-05-10", "05/2024"}},
		{models.EmailTypeSuspensionNotice, "registration", []string{"suspendida", "la inscripción"}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.emailType, func(t *testing.T) {
			body, err := d.Render(tc.emailType, subjects[tc.emailType], tc.period, Content{
				MemberName:  "Ana",
				Amount:      "100.00",
				Currency:    "ARS",
				DueDate:     "2024-05-10",
				DaysOverdue: 36,
			})
			require.NoError(t, err)
			for _, w := range tc.want {
				assert.Contains(t, body, w)
			}
		})
	}
}

func TestQueueRelayWithoutQueue(t *testing.T) {
	t.Parallel()

	err := NewQueueRelay(nil).Enqueue(context.Background(), Email{To: "a@example.com"})
	assert.ErrorIs(t, err, ErrRelayUnavailable)
}
