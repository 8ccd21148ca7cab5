// Package memstore provides in-memory repositories for tests. Every unique
// index of the SQL schema is enforced so conditional writes behave like the
// database under concurrency.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ManuelReschke/ClubDues/app/models"
	"github.com/ManuelReschke/ClubDues/app/repository"
)

// Store holds all tables behind one lock.
type Store struct {
	mu sync.Mutex

	payments    []models.Payment
	intents     []models.PaymentIntent
	members     map[string]models.Member
	configs     map[string]models.PaymentConfig
	fees        map[string]models.CategoryFee
	connections map[string]models.ProviderConnection
	emails      []models.EmailEvent
	webhooks    []models.WebhookEvent

	// Fail, when set, is returned by every call.
	Fail error
}

func New() *Store {
	return &Store{
		members:     map[string]models.Member{},
		configs:     map[string]models.PaymentConfig{},
		fees:        map[string]models.CategoryFee{},
		connections: map[string]models.ProviderConnection{},
	}
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Payment:            paymentRepo{s},
		PaymentIntent:      intentRepo{s},
		Member:             memberRepo{s},
		PaymentConfig:      configRepo{s},
		ProviderConnection: connectionRepo{s},
		EmailEvent:         emailRepo{s},
		WebhookEvent:       webhookRepo{s},
	}
}

func (s *Store) AddMember(m models.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Status == "" {
		m.Status = models.MemberStatusActive
	}
	s.members[m.TenantID+"/"+m.ID] = m
}

func (s *Store) Member(tenantID, memberID string) (models.Member, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[tenantID+"/"+memberID]
	return m, ok
}

func (s *Store) SetConfig(c models.PaymentConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[c.TenantID] = c
}

func (s *Store) SetCategoryFee(f models.CategoryFee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fees[f.TenantID+"/"+f.CategoryID] = f
}

func (s *Store) Payments() []models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Payment(nil), s.payments...)
}

func (s *Store) Intents() []models.PaymentIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PaymentIntent(nil), s.intents...)
}

func (s *Store) EmailEvents() []models.EmailEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.EmailEvent(nil), s.emails...)
}

func (s *Store) WebhookEvents() []models.WebhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.WebhookEvent(nil), s.webhooks...)
}

func (s *Store) Connections() []models.ProviderConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ProviderConnection, 0, len(s.connections))
	for _, c := range s.connections {
		out = append(out, c)
	}
	return out
}

type paymentRepo struct{ s *Store }

func (r paymentRepo) CreateIfAbsent(_ context.Context, p *models.Payment) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return false, r.s.Fail
	}
	p.SealApproval()
	for _, existing := range r.s.payments {
		if p.ProviderPaymentID != nil && existing.ProviderPaymentID != nil &&
			existing.Provider == p.Provider && *existing.ProviderPaymentID == *p.ProviderPaymentID {
			return false, nil
		}
		if p.ApprovalKey != nil && existing.ApprovalKey != nil && *existing.ApprovalKey == *p.ApprovalKey {
			return false, nil
		}
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	r.s.payments = append(r.s.payments, *p)
	return true, nil
}

func (r paymentRepo) FindApproved(_ context.Context, tenantID, memberID, period string) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}
	key := models.ApprovalKey(tenantID, memberID, period)
	for _, p := range r.s.payments {
		if p.ApprovalKey != nil && *p.ApprovalKey == key {
			out := p
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r paymentRepo) FindByProviderPaymentID(_ context.Context, provider, providerPaymentID string) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}
	for _, p := range r.s.payments {
		if p.Provider == provider && p.ProviderPaymentID != nil && *p.ProviderPaymentID == providerPaymentID {
			out := p
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r paymentRepo) match(q repository.PaymentQuery) []models.Payment {
	var out []models.Payment
	for _, p := range r.s.payments {
		switch {
		case p.TenantID != q.TenantID,
			q.MemberID != "" && p.MemberID != q.MemberID,
			q.Status != "" && p.Status != q.Status,
			q.Period != "" && p.Period != q.Period,
			q.Provider != "" && p.Provider != q.Provider,
			q.PaidFrom != nil && (p.PaidAt == nil || p.PaidAt.Before(*q.PaidFrom)),
			q.PaidTo != nil && (p.PaidAt == nil || !p.PaidAt.Before(*q.PaidTo)):
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].PaidAt, out[j].PaidAt
		if a != nil && b != nil && !a.Equal(*b) {
			return a.After(*b)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r paymentRepo) FindMany(_ context.Context, q repository.PaymentQuery) ([]models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}
	out := r.match(q)
	if q.Offset >= len(out) {
		return []models.Payment{}, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r paymentRepo) Count(_ context.Context, q repository.PaymentQuery) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return 0, r.s.Fail
	}
	return int64(len(r.match(q))), nil
}

type intentRepo struct{ s *Store }

func (r intentRepo) CreateIfAbsent(_ context.Context, i *models.PaymentIntent) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return false, r.s.Fail
	}
	for _, existing := range r.s.intents {
		if existing.ID == i.ID {
			return false, nil
		}
	}
	r.s.intents = append(r.s.intents, *i)
	return true, nil
}

func (r intentRepo) FindOne(_ context.Context, tenantID, intentID string) (*models.PaymentIntent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, i := range r.s.intents {
		if i.TenantID == tenantID && i.ID == intentID {
			out := i
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

type memberRepo struct{ s *Store }

func (r memberRepo) CreateIfAbsent(_ context.Context, m *models.Member) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := m.TenantID + "/" + m.ID
	if _, ok := r.s.members[key]; ok {
		return false, nil
	}
	r.s.members[key] = *m
	return true, nil
}

func (r memberRepo) FindInTenant(_ context.Context, tenantID, memberID string) (*models.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}
	m, ok := r.s.members[tenantID+"/"+memberID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r memberRepo) FindBillable(_ context.Context, tenantID string) ([]models.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}
	var out []models.Member
	for _, m := range r.s.members {
		if m.TenantID == tenantID && m.Billable() {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memberRepo) SetStatus(_ context.Context, tenantID, memberID, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return r.s.Fail
	}
	key := tenantID + "/" + memberID
	if m, ok := r.s.members[key]; ok {
		m.Status = status
		m.UpdatedAt = time.Now().UTC()
		r.s.members[key] = m
	}
	return nil
}

type configRepo struct{ s *Store }

func (r configRepo) FindConfig(_ context.Context, tenantID string) (*models.PaymentConfig, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}
	c, ok := r.s.configs[tenantID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r configRepo) SaveConfig(_ context.Context, c *models.PaymentConfig) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return r.s.Fail
	}
	r.s.configs[c.TenantID] = *c
	return nil
}

func (r configRepo) FindCategoryFee(_ context.Context, tenantID, categoryID string) (*models.CategoryFee, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.fees[tenantID+"/"+categoryID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &f, nil
}

type connectionRepo struct{ s *Store }

func (r connectionRepo) Upsert(_ context.Context, c *models.ProviderConnection) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return r.s.Fail
	}
	r.s.connections[c.TenantID+"/"+c.Provider] = *c
	return nil
}

func (r connectionRepo) FindOne(_ context.Context, tenantID, provider string) (*models.ProviderConnection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}
	c, ok := r.s.connections[tenantID+"/"+provider]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

type emailRepo struct{ s *Store }

func (r emailRepo) CreateIfAbsent(_ context.Context, e *models.EmailEvent) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return false, r.s.Fail
	}
	for _, existing := range r.s.emails {
		if existing.IdempotencyKey == e.IdempotencyKey {
			return false, nil
		}
	}
	e.ID = uint(len(r.s.emails) + 1)
	r.s.emails = append(r.s.emails, *e)
	return true, nil
}

func (r emailRepo) Exists(_ context.Context, key string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return false, r.s.Fail
	}
	for _, existing := range r.s.emails {
		if existing.IdempotencyKey == key {
			return true, nil
		}
	}
	return false, nil
}

type webhookRepo struct{ s *Store }

func (r webhookRepo) CreateIfAbsent(_ context.Context, e *models.WebhookEvent) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.webhooks {
		if existing.Provider == e.Provider && existing.DeliveryID == e.DeliveryID {
			*e = existing
			return false, nil
		}
	}
	e.ID = uint(len(r.s.webhooks) + 1)
	r.s.webhooks = append(r.s.webhooks, *e)
	return true, nil
}

func (r webhookRepo) MarkProcessed(_ context.Context, id uint, outcome, processingError string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.webhooks {
		if r.s.webhooks[i].ID == id {
			now := time.Now().UTC()
			r.s.webhooks[i].Outcome = outcome
			r.s.webhooks[i].ProcessingError = processingError
			r.s.webhooks[i].ProcessedAt = &now
		}
	}
	return nil
}
