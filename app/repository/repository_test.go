package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ClubDues/app/models"
	"github.com/ManuelReschke/ClubDues/internal/pkg/database"
)

// openTestDB connects to the database described by DB_* and skips the test
// when it is not reachable.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	cfg := database.ConfigFromEnv()
	if cfg.Name == "" {
		t.Skip("Skipping database test: DB_NAME not set")
	}
	db, err := database.Open(cfg)
	if err != nil {
		t.Skipf("Skipping database test: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Skipf("Skipping database test: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		t.Skipf("Skipping database test: no reachable database (%v)", err)
	}
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newTestPayment(tenantID, memberID, period, providerPaymentID string) *models.Payment {
	now := time.Now().UTC()
	p := &models.Payment{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		MemberID: memberID,
		Period:   period,
		Amount:   decimal.NewFromInt(15000),
		Currency: "ARS",
		Provider: models.ProviderMercadoPago,
		Status:   models.PaymentStatusApproved,
		PaidAt:   &now,
	}
	if providerPaymentID != "" {
		p.ProviderPaymentID = &providerPaymentID
	}
	return p
}

func TestPaymentRepositoryRejectsSecondApproval(t *testing.T) {
	db := openTestDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()
	tenant := "t-" + uuid.NewString()[:8]

	created, err := repo.CreateIfAbsent(ctx, newTestPayment(tenant, "m1", "2024-05", "mp-"+uuid.NewString()))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.CreateIfAbsent(ctx, newTestPayment(tenant, "m1", "2024-05", "mp-"+uuid.NewString()))
	require.NoError(t, err)
	assert.False(t, created, "second approval for the same period must not be inserted")

	found, err := repo.FindApproved(ctx, tenant, "m1", "2024-05")
	require.NoError(t, err)
	assert.Equal(t, "2024-05", found.Period)

	n, err := repo.Count(ctx, PaymentQuery{TenantID: tenant})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestPaymentRepositoryConcurrentReplay(t *testing.T) {
	db := openTestDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()
	tenant := "t-" + uuid.NewString()[:8]
	providerID := "mp-" + uuid.NewString()

	const deliveries = 8
	var wg sync.WaitGroup
	results := make(chan bool, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := repo.CreateIfAbsent(ctx, newTestPayment(tenant, "m1", "2024-06", providerID))
			assert.NoError(t, err)
			results <- created
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for created := range results {
		if created {
			winners++
		}
	}
	assert.Equal(t, 1, winners)

	found, err := repo.FindByProviderPaymentID(ctx, models.ProviderMercadoPago, providerID)
	require.NoError(t, err)
	assert.Equal(t, tenant, found.TenantID)
}

func TestEmailEventRepositoryDedup(t *testing.T) {
	db := openTestDB(t)
	repo := NewEmailEventRepository(db)
	ctx := context.Background()
	key := models.EmailIdempotencyKey(models.EmailTypePaymentReceipt, "m-"+uuid.NewString(), "2024-05")

	exists, err := repo.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	for i, want := range []bool{true, false} {
		created, err := repo.CreateIfAbsent(ctx, &models.EmailEvent{
			Type:           models.EmailTypePaymentReceipt,
			TenantID:       "t1",
			MemberID:       "m1",
			Period:         "2024-05",
			IdempotencyKey: key,
			SentAt:         time.Now().UTC(),
		})
		require.NoError(t, err)
		assert.Equal(t, want, created, "attempt %d", i)
	}

	exists, err = repo.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestProviderConnectionUpsertIsLastWriteWins(t *testing.T) {
	db := openTestDB(t)
	repo := NewProviderConnectionRepository(db)
	ctx := context.Background()
	tenant := "t-" + uuid.NewString()[:8]

	first := &models.ProviderConnection{TenantID: tenant, Provider: models.ProviderMercadoPago, AccessTokenEnc: "one", ConnectedAt: time.Now().UTC()}
	require.NoError(t, repo.Upsert(ctx, first))
	second := &models.ProviderConnection{TenantID: tenant, Provider: models.ProviderMercadoPago, AccessTokenEnc: "two", ConnectedAt: time.Now().UTC()}
	require.NoError(t, repo.Upsert(ctx, second))

	stored, err := repo.FindOne(ctx, tenant, models.ProviderMercadoPago)
	require.NoError(t, err)
	assert.Equal(t, "two", stored.AccessTokenEnc)
	assert.Equal(t, first.ID, second.ID)

	_, err = repo.FindOne(ctx, tenant, models.ProviderDLocal)
	assert.ErrorIs(t, err, ErrNotFound)
}
