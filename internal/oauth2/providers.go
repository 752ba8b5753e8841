package oauth2

import (
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

// DefaultRedirectURL matches the address of the login callback server.
const DefaultRedirectURL = "http://localhost:8085/oauth/callback"

// GetGoogleConfig returns the OAuth2 config for Gmail IMAP
func GetGoogleConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"https://mail.google.com/"},
		Endpoint:     google.Endpoint,
	}
}

// GetMicrosoftConfig returns the OAuth2 config for Outlook IMAP
func GetMicrosoftConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes: []string{
			"https://outlook.office.com/IMAP.AccessAsUser.All",
			"offline_access",
		},
		Endpoint: microsoft.AzureADEndpoint("common"),
	}
}

// GetProviderConfig returns the config of a named provider. An empty
// redirect URL falls back to DefaultRedirectURL.
func GetProviderConfig(provider, clientID, clientSecret, redirectURL string) (*oauth2.Config, error) {
	if redirectURL == "" {
		redirectURL = DefaultRedirectURL
	}
	switch strings.ToLower(provider) {
	case "google", "gmail":
		return GetGoogleConfig(clientID, clientSecret, redirectURL), nil
	case "microsoft", "outlook", "office365":
		return GetMicrosoftConfig(clientID, clientSecret, redirectURL), nil
	default:
		return nil, fmt.Errorf("unsupported OAuth2 provider: %s", provider)
	}
}
