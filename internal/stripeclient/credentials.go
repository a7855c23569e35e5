package stripeclient

import (
	"errors"
	"strings"
)

// ErrNoCredentials means no credential strategy could produce a usable key.
var ErrNoCredentials = errors.New("no_credentials")

// CredentialSource carries the per-connection credential material stored on
// an integration connection record.
type CredentialSource struct {
	PlatformAccountID string
	AccessToken       string
	LegacyAPIKey      string
}

// Credentials is the resolved key material attached to outbound requests.
// AccountHeader, when set, scopes platform-key requests to a connected
// account via the Stripe-Account header.
type Credentials struct {
	SecretKey     string
	AccountHeader string
}

// Resolve picks a credential strategy in fixed precedence order: the
// platform key scoped to a connected account wins, then a per-connection
// OAuth access token, then a legacy static key.
func (c *Client) Resolve(src CredentialSource) (Credentials, error) {
	platformKey := strings.TrimSpace(c.cfg.PlatformSecretKey)
	accountID := strings.TrimSpace(src.PlatformAccountID)
	if platformKey != "" && accountID != "" {
		return Credentials{SecretKey: platformKey, AccountHeader: accountID}, nil
	}

	if token := strings.TrimSpace(src.AccessToken); token != "" {
		return Credentials{SecretKey: token}, nil
	}

	if key := strings.TrimSpace(src.LegacyAPIKey); key != "" {
		return Credentials{SecretKey: key}, nil
	}
	if key := strings.TrimSpace(c.cfg.LegacyAPIKey); key != "" {
		return Credentials{SecretKey: key}, nil
	}

	return Credentials{}, ErrNoCredentials
}
