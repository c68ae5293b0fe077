package auth

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"
)

// Writeback persists refreshed tokens somewhere beyond the credential's
// Origin — the account pool implements this to keep its encrypted columns
// in sync with whatever a Manager refreshes in memory.
type Writeback interface {
	SaveCredentials(ctx context.Context, creds Credentials) error
}

// Manager holds one account's credential lifecycle: the current token,
// its expiry, and everything needed to refresh it. A single instance must
// only ever be used for one account; concurrent callers are serialized by
// an internal mutex exactly as the spec requires.
type Manager struct {
	mu sync.Mutex

	creds     Credentials
	endpoints Endpoints

	origin    Origin // nil if credentials were supplied directly (e.g. by the pool)
	writeback Writeback

	fingerprint string
	httpClient  *http.Client
	log         *slog.Logger
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithOrigin attaches a mutable external store the Manager reloads from
// before refreshing, and writes refreshed tokens back to.
func WithOrigin(o Origin) Option {
	return func(m *Manager) { m.origin = o }
}

// WithWriteback attaches an additional sink refreshed tokens are written
// to, independent of (and in addition to) any Origin.
func WithWriteback(w Writeback) Option {
	return func(m *Manager) { m.writeback = w }
}

// WithHTTPClient overrides the HTTP client used for refresh requests.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// New constructs a Manager for one account's credentials.
func New(creds Credentials, opts ...Option) *Manager {
	if creds.Region == "" {
		creds.Region = "us-east-1"
	}
	m := &Manager{
		creds:       creds,
		endpoints:   EndpointsForRegion(creds.Region),
		fingerprint: machineFingerprint(),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("component", "accounts.auth")
	return m
}

// GetAccessToken returns a valid access token, refreshing if necessary.
// Mirrors the reference implementation's layered degradation: reuse a
// still-fresh token, reload from a mutable origin before refreshing,
// retry once on an OIDC 400 after reloading, and fall back to a
// not-yet-expired in-memory token if every refresh attempt fails.
func (m *Manager) GetAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.creds.AccessToken != "" && !m.expiringSoonLocked() {
		return m.creds.AccessToken, nil
	}

	if m.origin != nil {
		if reloaded, err := m.origin.Load(ctx); err == nil {
			m.mergeReloadLocked(reloaded)
			if m.creds.AccessToken != "" && !m.expiringSoonLocked() {
				m.log.Debug("origin reload provided a fresh token, skipping refresh")
				return m.creds.AccessToken, nil
			}
		} else {
			m.log.Warn("failed to reload credentials from origin", "error", err)
		}
	}

	err := m.refreshLocked(ctx)
	if err == nil {
		return m.creds.AccessToken, nil
	}

	var statusErr *httpStatusError
	if asHTTPStatusError(err, &statusErr) && statusErr.status == http.StatusBadRequest && m.creds.Type == TypeOIDC && m.origin != nil {
		m.log.Warn("token refresh failed with 400, reloading origin and retrying")
		if reloaded, reloadErr := m.origin.Load(ctx); reloadErr == nil {
			m.mergeReloadLocked(reloaded)
			if retryErr := m.refreshLocked(ctx); retryErr == nil {
				return m.creds.AccessToken, nil
			}
		}
		if m.creds.AccessToken != "" && !m.expiredLocked() {
			m.log.Warn("refresh failed twice, using existing access token until it expires")
			return m.creds.AccessToken, nil
		}
		return "", fmt.Errorf("auth: token expired and refresh failed, re-login required: %w", err)
	}

	if m.creds.AccessToken != "" && !m.expiredLocked() {
		m.log.Warn("refresh failed, using existing access token until it expires", "error", err)
		return m.creds.AccessToken, nil
	}

	return "", fmt.Errorf("auth: token expired and refresh failed, re-login required: %w", err)
}

// ForceRefresh unconditionally refreshes the token, used when the upstream
// rejects a request with 403.
func (m *Manager) ForceRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.refreshLocked(ctx); err != nil {
		return "", err
	}
	return m.creds.AccessToken, nil
}

func (m *Manager) mergeReloadLocked(reloaded Credentials) {
	if reloaded.AccessToken != "" {
		m.creds.AccessToken = reloaded.AccessToken
	}
	if reloaded.RefreshToken != "" {
		m.creds.RefreshToken = reloaded.RefreshToken
	}
	if reloaded.ProfileARN != "" {
		m.creds.ProfileARN = reloaded.ProfileARN
	}
	if reloaded.OIDCRegion != "" {
		m.creds.OIDCRegion = reloaded.OIDCRegion
	}
	if len(reloaded.Scopes) > 0 {
		m.creds.Scopes = reloaded.Scopes
	}
	if !reloaded.ExpiresAt.IsZero() {
		m.creds.ExpiresAt = reloaded.ExpiresAt
	}
	if reloaded.ClientID != "" {
		m.creds.ClientID = reloaded.ClientID
	}
	if reloaded.ClientSecret != "" {
		m.creds.ClientSecret = reloaded.ClientSecret
	}
}

func (m *Manager) expiringSoonLocked() bool {
	if m.creds.ExpiresAt.IsZero() {
		return true
	}
	return !time.Now().Add(RefreshThreshold).Before(m.creds.ExpiresAt)
}

func (m *Manager) expiredLocked() bool {
	if m.creds.ExpiresAt.IsZero() {
		return true
	}
	return !time.Now().Before(m.creds.ExpiresAt)
}

func (m *Manager) refreshLocked(ctx context.Context) error {
	if m.creds.Type == TypeOIDC {
		return m.refreshOIDCLocked(ctx)
	}
	return m.refreshDesktopLocked(ctx)
}

type desktopRefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type desktopRefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	ProfileARN   string `json:"profileArn"`
}

func (m *Manager) refreshDesktopLocked(ctx context.Context) error {
	if m.creds.RefreshToken == "" {
		return fmt.Errorf("auth: refresh token is not set")
	}

	body, err := json.Marshal(desktopRefreshRequest{RefreshToken: m.creds.RefreshToken})
	if err != nil {
		return fmt.Errorf("auth: encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoints.RefreshURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("auth: build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "KiroIDE-0.7.45-"+m.fingerprint)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth: refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newHTTPStatusError(resp.StatusCode, "kiro desktop refresh")
	}

	var data desktopRefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return fmt.Errorf("auth: decode refresh response: %w", err)
	}
	if data.AccessToken == "" {
		return fmt.Errorf("auth: refresh response missing accessToken")
	}

	m.creds.AccessToken = data.AccessToken
	if data.RefreshToken != "" {
		m.creds.RefreshToken = data.RefreshToken
	}
	if data.ProfileARN != "" {
		m.creds.ProfileARN = data.ProfileARN
	}
	expiresIn := data.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}
	m.creds.ExpiresAt = time.Now().UTC().Add(time.Duration(expiresIn)*time.Second - 60*time.Second)

	m.log.Info("token refreshed via kiro desktop auth", "expires_at", m.creds.ExpiresAt)
	m.writeBackLocked(ctx)
	return nil
}

type oidcRefreshRequest struct {
	GrantType    string `json:"grantType"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	RefreshToken string `json:"refreshToken"`
}

type oidcRefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

func (m *Manager) refreshOIDCLocked(ctx context.Context) error {
	if m.creds.RefreshToken == "" {
		return fmt.Errorf("auth: refresh token is not set")
	}
	if m.creds.ClientID == "" || m.creds.ClientSecret == "" {
		return fmt.Errorf("auth: client id/secret required for AWS SSO OIDC")
	}

	region := m.creds.OIDCRegion
	if region == "" {
		region = m.creds.Region
	}

	body, err := json.Marshal(oidcRefreshRequest{
		GrantType:    "refresh_token",
		ClientID:     m.creds.ClientID,
		ClientSecret: m.creds.ClientSecret,
		RefreshToken: m.creds.RefreshToken,
	})
	if err != nil {
		return fmt.Errorf("auth: encode oidc refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, OIDCTokenURL(region), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("auth: build oidc refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth: oidc refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newHTTPStatusError(resp.StatusCode, "aws sso oidc refresh")
	}

	var data oidcRefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return fmt.Errorf("auth: decode oidc refresh response: %w", err)
	}
	if data.AccessToken == "" {
		return fmt.Errorf("auth: oidc refresh response missing accessToken")
	}

	m.creds.AccessToken = data.AccessToken
	if data.RefreshToken != "" {
		m.creds.RefreshToken = data.RefreshToken
	}
	expiresIn := data.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}
	m.creds.ExpiresAt = time.Now().UTC().Add(time.Duration(expiresIn)*time.Second - 60*time.Second)

	m.log.Info("token refreshed via aws sso oidc", "expires_at", m.creds.ExpiresAt)
	m.writeBackLocked(ctx)
	return nil
}

func (m *Manager) writeBackLocked(ctx context.Context) {
	if m.origin != nil {
		if err := m.origin.Save(ctx, m.creds); err != nil {
			m.log.Warn("failed to write back refreshed credentials to origin", "error", err)
		}
	}
	if m.writeback != nil {
		if err := m.writeback.SaveCredentials(ctx, m.creds); err != nil {
			m.log.Warn("failed to write back refreshed credentials", "error", err)
		}
	}
}

// ProfileARN returns the account's CodeWhisperer profile ARN.
func (m *Manager) ProfileARN() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds.ProfileARN
}

// Region returns the account's API region.
func (m *Manager) Region() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds.Region
}

// APIHost returns the CodeWhisperer API host for the account's region.
func (m *Manager) APIHost() string {
	return m.endpoints.APIHost
}

// QHost returns the Q API host for the account's region.
func (m *Manager) QHost() string {
	return m.endpoints.QHost
}

// Fingerprint returns the machine fingerprint used in refresh User-Agent
// headers.
func (m *Manager) Fingerprint() string {
	return m.fingerprint
}

// Type returns the account's authentication kind.
func (m *Manager) Type() Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds.Type
}

type httpStatusError struct {
	status int
	scope  string
}

func newHTTPStatusError(status int, scope string) error {
	return &httpStatusError{status: status, scope: scope}
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("auth: %s: unexpected status %d", e.scope, e.status)
}

func asHTTPStatusError(err error, target **httpStatusError) bool {
	se, ok := err.(*httpStatusError)
	if !ok {
		return false
	}
	*target = se
	return true
}

func machineFingerprint() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	sum := sha256.Sum256([]byte(hostname))
	return hex.EncodeToString(sum[:])[:16]
}
