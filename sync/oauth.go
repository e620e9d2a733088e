// ABOUTME: OAuth configuration for the Gmail connection
// ABOUTME: Builds the Google OAuth client from application config with read-only mail scopes
package sync

import (
	"github.com/harperreed/subzero/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"
)

// Scopes requested when connecting a mailbox.
var Scopes = []string{
	gmail.GmailReadonlyScope,
	oauth2api.UserinfoEmailScope,
}

// OAuthConfig creates the OAuth2 config for Google APIs. It fails with a
// configuration error when the client id, secret or redirect URI is missing.
func OAuthConfig(cfg *config.Config) (*oauth2.Config, error) {
	if err := cfg.RequireOAuth(); err != nil {
		return nil, err
	}

	return &oauth2.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURI,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}, nil
}
