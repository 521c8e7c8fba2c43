package auth

import (
	"errors"
	"net/url"
	"strings"
)

var ErrUnsupportedOAuthProvider = errors.New("unsupported oauth provider")

var oauthProviders = map[string]bool{
	"google":  true,
	"github":  true,
	"discord": true,
	"twitter": true,
}

// OAuthURL returns the gateway authorize URL for provider, redirecting back
// to the frontend callback page.
func OAuthURL(gatewayURL, frontendURL, provider string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !oauthProviders[provider] {
		return "", ErrUnsupportedOAuthProvider
	}
	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", strings.TrimRight(frontendURL, "/")+"/auth/callback")
	return strings.TrimRight(gatewayURL, "/") + "/auth/v1/authorize?" + q.Encode(), nil
}
