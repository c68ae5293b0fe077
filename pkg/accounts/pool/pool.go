package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/relay/pkg/accounts/auth"
	"mercator-hq/relay/pkg/secrets"
)

// ErrNoHealthyAccounts is returned by GetAccount when every account is
// either inactive or over its error threshold.
var ErrNoHealthyAccounts = errors.New("pool: no healthy accounts available")

// Pool maintains the live set of upstream accounts and the single
// auth.Manager instance bound to each. Selection, error accounting, and
// the manager cache are all serialized by one mutex, matching the
// single-mutex concurrency model the rest of this package's callers
// depend on.
type Pool struct {
	store          *Store
	cipher         secrets.Cipher
	errorThreshold int

	mu           sync.Mutex
	authManagers map[int64]*auth.Manager
	counter      int

	log *slog.Logger
}

// Config configures a Pool.
type Config struct {
	ErrorThreshold int // consecutive errors before an account is deactivated; default 3
}

// New constructs a Pool backed by store, using cipher to decrypt and
// re-encrypt credential columns.
func New(store *Store, cipher secrets.Cipher, cfg Config, logger *slog.Logger) *Pool {
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		store:          store,
		cipher:         cipher,
		errorThreshold: cfg.ErrorThreshold,
		authManagers:   make(map[int64]*auth.Manager),
		log:            logger.With("component", "accounts.pool"),
	}
}

// GetAccount selects the next account by priority-then-round-robin and
// returns its id and auth manager, creating the manager lazily on first
// selection.
func (p *Pool) GetAccount(ctx context.Context) (int64, *auth.Manager, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	accounts, err := p.store.ListHealthy(ctx, p.errorThreshold)
	if err != nil {
		return 0, nil, err
	}
	if len(accounts) == 0 {
		p.log.Error("no healthy accounts available")
		return 0, nil, ErrNoHealthyAccounts
	}

	selected := accounts[p.counter%len(accounts)]
	p.counter++

	manager, ok := p.authManagers[selected.ID]
	if !ok {
		p.log.Info("creating auth manager", "account_id", selected.ID, "name", selected.Name)
		manager, err = p.buildAuthManager(selected)
		if err != nil {
			return 0, nil, fmt.Errorf("pool: build auth manager for account %d: %w", selected.ID, err)
		}
		p.authManagers[selected.ID] = manager
	}
	return selected.ID, manager, nil
}

func (p *Pool) buildAuthManager(a *Account) (*auth.Manager, error) {
	refreshToken, err := p.cipher.Decrypt(a.RefreshTokenEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt refresh token: %w", err)
	}
	accessToken, err := p.cipher.Decrypt(a.AccessTokenEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	clientID, err := p.cipher.Decrypt(a.ClientIDEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt client id: %w", err)
	}
	clientSecret, err := p.cipher.Decrypt(a.ClientSecretEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt client secret: %w", err)
	}

	creds := auth.Credentials{
		Type:         a.AuthType,
		RefreshToken: refreshToken,
		ProfileARN:   a.ProfileARN,
		Region:       a.Region,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}

	// Seed the in-memory access token if it's still valid, to skip one
	// refresh round-trip.
	if accessToken != "" && a.ExpiresAt != nil && a.ExpiresAt.After(time.Now()) {
		creds.AccessToken = accessToken
		creds.ExpiresAt = *a.ExpiresAt
	}

	manager := auth.New(creds, auth.WithWriteback(&accountWriteback{pool: p, accountID: a.ID}))
	return manager, nil
}

// ReportError increments an account's error count, truncating the stored
// message, and deactivates it (evicting its cached auth manager) once the
// configured threshold is reached.
func (p *Pool) ReportError(ctx context.Context, accountID int64, message string) error {
	newCount, deactivated, err := p.store.IncrementError(ctx, accountID, message, p.errorThreshold)
	if err != nil {
		return err
	}
	p.log.Warn("account error reported", "account_id", accountID, "error_count", newCount, "message", message)

	if deactivated {
		p.log.Error("account exceeded error threshold, deactivating",
			"account_id", accountID, "error_count", newCount, "threshold", p.errorThreshold)
		p.mu.Lock()
		delete(p.authManagers, accountID)
		p.mu.Unlock()
	}
	return nil
}

// ReportSuccess resets an account's error tracking after a successful
// request.
func (p *Pool) ReportSuccess(ctx context.Context, accountID int64) error {
	return p.store.ResetHealth(ctx, accountID)
}

// RefreshAccountToken forces a token refresh for a specific account,
// creating its auth manager first if needed.
func (p *Pool) RefreshAccountToken(ctx context.Context, accountID int64) error {
	p.mu.Lock()
	manager, ok := p.authManagers[accountID]
	if !ok {
		account, err := p.store.GetByID(ctx, accountID)
		if err != nil {
			p.mu.Unlock()
			return err
		}
		if account == nil {
			p.mu.Unlock()
			return fmt.Errorf("pool: account %d not found", accountID)
		}
		manager, err = p.buildAuthManager(account)
		if err != nil {
			p.mu.Unlock()
			return err
		}
		p.authManagers[accountID] = manager
	}
	p.mu.Unlock()

	if _, err := manager.GetAccessToken(ctx); err != nil {
		_ = p.ReportError(ctx, accountID, err.Error())
		return fmt.Errorf("pool: refresh token for account %d: %w", accountID, err)
	}
	return p.ReportSuccess(ctx, accountID)
}

// ListAccounts returns every account's metadata, omitting credential
// columns.
func (p *Pool) ListAccounts(ctx context.Context) ([]Summary, error) {
	accounts, err := p.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, Summary{
			ID:            a.ID,
			Name:          a.Name,
			AuthType:      a.AuthType,
			Region:        a.Region,
			Priority:      a.Priority,
			IsActive:      a.IsActive,
			ErrorCount:    a.ErrorCount,
			LastError:     a.LastError,
			LastSuccessAt: a.LastSuccessAt,
			CreatedAt:     a.CreatedAt,
		})
	}
	return out, nil
}

// DeleteAccount permanently removes an account and evicts its cached auth
// manager.
func (p *Pool) DeleteAccount(ctx context.Context, accountID int64) (bool, error) {
	p.mu.Lock()
	delete(p.authManagers, accountID)
	p.mu.Unlock()
	return p.store.Delete(ctx, accountID)
}

// AddAccount encrypts the supplied credentials and persists a new account.
func (p *Pool) AddAccount(ctx context.Context, name string, authType auth.Type, region string, priority int, refreshToken, accessToken, clientID, clientSecret string) (*Account, error) {
	refreshEnc, err := p.cipher.Encrypt(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("pool: encrypt refresh token: %w", err)
	}
	accessEnc, err := p.cipher.Encrypt(accessToken)
	if err != nil {
		return nil, fmt.Errorf("pool: encrypt access token: %w", err)
	}
	clientIDEnc, err := p.cipher.Encrypt(clientID)
	if err != nil {
		return nil, fmt.Errorf("pool: encrypt client id: %w", err)
	}
	clientSecretEnc, err := p.cipher.Encrypt(clientSecret)
	if err != nil {
		return nil, fmt.Errorf("pool: encrypt client secret: %w", err)
	}

	account := &Account{
		Name:                  name,
		AuthType:              authType,
		Region:                region,
		Priority:              priority,
		IsActive:              true,
		RefreshTokenEncrypted: refreshEnc,
		AccessTokenEncrypted:  accessEnc,
		ClientIDEncrypted:     clientIDEnc,
		ClientSecretEncrypted: clientSecretEnc,
	}
	if err := p.store.Insert(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// accountWriteback implements auth.Writeback, re-encrypting refreshed
// tokens back into this account's row.
type accountWriteback struct {
	pool      *Pool
	accountID int64
}

func (w *accountWriteback) SaveCredentials(ctx context.Context, creds auth.Credentials) error {
	accessEnc, err := w.pool.cipher.Encrypt(creds.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	refreshEnc, err := w.pool.cipher.Encrypt(creds.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}
	var expiresAt *time.Time
	if !creds.ExpiresAt.IsZero() {
		t := creds.ExpiresAt
		expiresAt = &t
	}
	if err := w.pool.store.UpdateTokens(ctx, w.accountID, accessEnc, refreshEnc, expiresAt); err != nil {
		return err
	}
	w.pool.log.Info("saved refreshed credentials", "account_id", w.accountID)
	return nil
}
