package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/ClubDues/app/models"
	"github.com/ManuelReschke/ClubDues/app/repository"
	"github.com/ManuelReschke/ClubDues/internal/pkg/clock"
	"github.com/ManuelReschke/ClubDues/internal/pkg/provider"
)

// ErrNotConnected is returned when a tenant has not connected the provider.
var ErrNotConnected = errors.New("provider account not connected")

// Status is the client-safe view of a connection.
type Status struct {
	Connected   bool       `json:"connected"`
	ConnectedAt *time.Time `json:"connectedAt"`
}

// Manager stores and loads tenant provider credentials.
type Manager struct {
	connections repository.ProviderConnectionRepository
	cipher      *TokenCipher
	clock       clock.Clock
}

func NewManager(connections repository.ProviderConnectionRepository, cipher *TokenCipher, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.System{}
	}
	return &Manager{connections: connections, cipher: cipher, clock: clk}
}

// Store encrypts the tokens and replaces any previous connection.
func (m *Manager) Store(ctx context.Context, tenantID, providerName string, tokens *provider.TokenSet) error {
	if tokens == nil || tokens.AccessToken == "" {
		return errors.New("access token is required")
	}
	access, err := m.cipher.Seal(tokens.AccessToken, tenantID, providerName)
	if err != nil {
		return err
	}
	refresh, err := m.cipher.Seal(tokens.RefreshToken, tenantID, providerName)
	if err != nil {
		return err
	}

	conn := &models.ProviderConnection{
		TenantID:        tenantID,
		Provider:        providerName,
		ProviderUserID:  tokens.UserID,
		AccessTokenEnc:  access,
		RefreshTokenEnc: refresh,
		ConnectedAt:     m.clock.Now().UTC(),
	}
	if !tokens.Expiry.IsZero() {
		exp := tokens.Expiry.UTC()
		conn.ExpiresAt = &exp
	}
	return m.connections.Upsert(ctx, conn)
}

// Get returns the decrypted credentials or ErrNotConnected.
func (m *Manager) Get(ctx context.Context, tenantID, providerName string) (*provider.Credentials, error) {
	conn, err := m.connections.FindOne(ctx, tenantID, providerName)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, err
	}
	access, err := m.cipher.Open(conn.AccessTokenEnc, tenantID, providerName)
	if err != nil {
		return nil, fmt.Errorf("connection %s/%s: %w", tenantID, providerName, err)
	}
	refresh, err := m.cipher.Open(conn.RefreshTokenEnc, tenantID, providerName)
	if err != nil {
		return nil, fmt.Errorf("connection %s/%s: %w", tenantID, providerName, err)
	}
	return &provider.Credentials{
		AccessToken:    access,
		RefreshToken:   refresh,
		ProviderUserID: conn.ProviderUserID,
		ExpiresAt:      conn.ExpiresAt,
	}, nil
}

// Status reports whether the tenant is connected without touching tokens.
func (m *Manager) Status(ctx context.Context, tenantID, providerName string) (Status, error) {
	conn, err := m.connections.FindOne(ctx, tenantID, providerName)
	if errors.Is(err, repository.ErrNotFound) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}
	at := conn.ConnectedAt
	return Status{Connected: true, ConnectedAt: &at}, nil
}
