package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Origin is the mutable external store a Manager's credentials were loaded
// from, and are written back to after a successful refresh. A Manager
// without an Origin (credentials supplied directly, e.g. from the account
// pool's encrypted columns) only writes back through its Writeback, if any.
type Origin interface {
	Load(ctx context.Context) (Credentials, error)
	Save(ctx context.Context, creds Credentials) error
}

// sqliteTokenKeys are the kiro-cli auth_kv keys searched in priority order.
var sqliteTokenKeys = []string{
	"kirocli:social:token",
	"kirocli:odic:token",
	"codewhisperer:odic:token",
}

var sqliteRegistrationKeys = []string{
	"kirocli:odic:device-registration",
	"codewhisperer:odic:device-registration",
}

type sqliteTokenPayload struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ProfileARN   string   `json:"profile_arn"`
	Region       string   `json:"region"`
	Scopes       []string `json:"scopes"`
	ExpiresAt    string   `json:"expires_at"`
}

type sqliteRegistrationPayload struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Region       string `json:"region"`
}

// SQLiteOrigin loads and writes back credentials kept in a kiro-cli-style
// "auth_kv" SQLite database. It uses the pure-Go sqlite driver since this
// path reads a file owned by another local process rather than the
// gateway's own managed database.
type SQLiteOrigin struct {
	path string

	// tokenKey remembers which auth_kv key credentials were loaded from, so
	// Save writes back to the same row instead of guessing.
	tokenKey string
}

// NewSQLiteOrigin constructs a SQLiteOrigin for the database at path.
func NewSQLiteOrigin(path string) *SQLiteOrigin {
	return &SQLiteOrigin{path: path}
}

// Load reads the current token and device-registration rows.
func (o *SQLiteOrigin) Load(ctx context.Context) (Credentials, error) {
	var creds Credentials

	expanded, err := expandHome(o.path)
	if err != nil {
		return creds, err
	}
	if _, err := os.Stat(expanded); err != nil {
		return creds, fmt.Errorf("auth: sqlite origin: %w", err)
	}

	db, err := sql.Open("sqlite", expanded)
	if err != nil {
		return creds, fmt.Errorf("auth: open sqlite origin: %w", err)
	}
	defer db.Close()

	for _, key := range sqliteTokenKeys {
		var value string
		err := db.QueryRowContext(ctx, "SELECT value FROM auth_kv WHERE key = ?", key).Scan(&value)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return creds, fmt.Errorf("auth: query sqlite token: %w", err)
		}
		var payload sqliteTokenPayload
		if err := json.Unmarshal([]byte(value), &payload); err != nil {
			return creds, fmt.Errorf("auth: decode sqlite token: %w", err)
		}
		o.tokenKey = key
		creds.AccessToken = payload.AccessToken
		creds.RefreshToken = payload.RefreshToken
		creds.ProfileARN = payload.ProfileARN
		creds.OIDCRegion = payload.Region
		creds.Scopes = payload.Scopes
		if payload.ExpiresAt != "" {
			if t, err := parseFlexibleTime(payload.ExpiresAt); err == nil {
				creds.ExpiresAt = t
			}
		}
		break
	}

	for _, key := range sqliteRegistrationKeys {
		var value string
		err := db.QueryRowContext(ctx, "SELECT value FROM auth_kv WHERE key = ?", key).Scan(&value)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return creds, fmt.Errorf("auth: query sqlite registration: %w", err)
		}
		var payload sqliteRegistrationPayload
		if err := json.Unmarshal([]byte(value), &payload); err != nil {
			return creds, fmt.Errorf("auth: decode sqlite registration: %w", err)
		}
		creds.ClientID = payload.ClientID
		creds.ClientSecret = payload.ClientSecret
		if creds.OIDCRegion == "" {
			creds.OIDCRegion = payload.Region
		}
		break
	}

	if creds.ClientID != "" && creds.ClientSecret != "" {
		creds.Type = TypeOIDC
	} else {
		creds.Type = TypeDesktop
	}
	return creds, nil
}

// Save writes refreshed tokens back to the key they were loaded from,
// falling back to trying every known key if the origin key is unknown.
func (o *SQLiteOrigin) Save(ctx context.Context, creds Credentials) error {
	expanded, err := expandHome(o.path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err != nil {
		return fmt.Errorf("auth: sqlite origin: %w", err)
	}

	db, err := sql.Open("sqlite", expanded)
	if err != nil {
		return fmt.Errorf("auth: open sqlite origin: %w", err)
	}
	defer db.Close()

	region := creds.OIDCRegion
	if region == "" {
		region = creds.Region
	}
	payload := sqliteTokenPayload{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Region:       region,
		Scopes:       creds.Scopes,
	}
	if !creds.ExpiresAt.IsZero() {
		payload.ExpiresAt = creds.ExpiresAt.Format(time.RFC3339)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("auth: encode sqlite token: %w", err)
	}

	keys := sqliteTokenKeys
	if o.tokenKey != "" {
		keys = append([]string{o.tokenKey}, keys...)
	}
	for _, key := range keys {
		res, err := db.ExecContext(ctx, "UPDATE auth_kv SET value = ? WHERE key = ?", string(encoded), key)
		if err != nil {
			return fmt.Errorf("auth: update sqlite token: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			o.tokenKey = key
			return nil
		}
	}
	return fmt.Errorf("auth: no matching auth_kv key to write back to")
}

type fileCredentials struct {
	RefreshToken string `json:"refreshToken"`
	AccessToken  string `json:"accessToken,omitempty"`
	ProfileARN   string `json:"profileArn,omitempty"`
	Region       string `json:"region,omitempty"`
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
}

// FileOrigin loads and writes back credentials kept in a plain JSON file.
type FileOrigin struct {
	path string
}

// NewFileOrigin constructs a FileOrigin for the JSON file at path.
func NewFileOrigin(path string) *FileOrigin {
	return &FileOrigin{path: path}
}

// Load reads the credentials file.
func (o *FileOrigin) Load(ctx context.Context) (Credentials, error) {
	var creds Credentials
	expanded, err := expandHome(o.path)
	if err != nil {
		return creds, err
	}
	raw, err := os.ReadFile(expanded)
	if err != nil {
		return creds, fmt.Errorf("auth: read credentials file: %w", err)
	}
	var data fileCredentials
	if err := json.Unmarshal(raw, &data); err != nil {
		return creds, fmt.Errorf("auth: decode credentials file: %w", err)
	}
	creds.RefreshToken = data.RefreshToken
	creds.AccessToken = data.AccessToken
	creds.ProfileARN = data.ProfileARN
	creds.Region = data.Region
	creds.ClientID = data.ClientID
	creds.ClientSecret = data.ClientSecret
	if data.ExpiresAt != "" {
		if t, err := parseFlexibleTime(data.ExpiresAt); err == nil {
			creds.ExpiresAt = t
		}
	}
	if creds.ClientID != "" && creds.ClientSecret != "" {
		creds.Type = TypeOIDC
	} else {
		creds.Type = TypeDesktop
	}
	return creds, nil
}

// Save merges refreshed fields into the existing file, preserving any
// fields this package doesn't model.
func (o *FileOrigin) Save(ctx context.Context, creds Credentials) error {
	expanded, err := expandHome(o.path)
	if err != nil {
		return err
	}

	existing := map[string]any{}
	if raw, err := os.ReadFile(expanded); err == nil {
		_ = json.Unmarshal(raw, &existing)
	}

	existing["accessToken"] = creds.AccessToken
	existing["refreshToken"] = creds.RefreshToken
	if !creds.ExpiresAt.IsZero() {
		existing["expiresAt"] = creds.ExpiresAt.Format(time.RFC3339)
	}
	if creds.ProfileARN != "" {
		existing["profileArn"] = creds.ProfileARN
	}

	encoded, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("auth: encode credentials file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o700); err != nil {
		return fmt.Errorf("auth: create credentials dir: %w", err)
	}
	return os.WriteFile(expanded, encoded, 0o600)
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("auth: resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func parseFlexibleTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
