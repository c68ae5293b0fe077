// Package auth manages the per-account credential lifecycle for the
// upstream provider: loading refresh/access tokens from their origin,
// refreshing them before they expire, and writing refreshed tokens back to
// that same origin.
package auth

import "time"

// Type distinguishes the two supported upstream authentication schemes.
type Type string

const (
	// TypeDesktop is Kiro IDE's own refresh-token exchange.
	TypeDesktop Type = "kiro_desktop"
	// TypeOIDC is AWS SSO OIDC, used by the CLI tooling.
	TypeOIDC Type = "aws_sso_oidc"
)

// RefreshThreshold is how far ahead of expiry a token is proactively
// refreshed.
const RefreshThreshold = 600 * time.Second

// Credentials is the full set of fields an account's auth state can carry.
// Not every field is used by every Type.
type Credentials struct {
	Type         Type
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // zero means unknown; treated as already expired
	ProfileARN   string
	Region       string
	ClientID     string
	ClientSecret string
	OIDCRegion   string // SSO region for the OIDC token endpoint; may differ from Region
	Scopes       []string
}

// Endpoints holds the region-derived URLs an account's manager talks to.
type Endpoints struct {
	RefreshURL string
	APIHost    string
	QHost      string
}

// EndpointsForRegion derives the Kiro Desktop refresh endpoint and API
// hosts for a region.
func EndpointsForRegion(region string) Endpoints {
	return Endpoints{
		RefreshURL: "https://prod." + region + ".auth.desktop.kiro.dev/refreshToken",
		APIHost:    "https://codewhisperer." + region + ".amazonaws.com",
		QHost:      "https://q." + region + ".amazonaws.com",
	}
}

// OIDCTokenURL derives the AWS SSO OIDC token endpoint for a region.
func OIDCTokenURL(region string) string {
	return "https://oidc." + region + ".amazonaws.com/token"
}
