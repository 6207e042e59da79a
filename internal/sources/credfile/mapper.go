package credfile

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
)

// Mapper converts file credentials into an oauth2 configuration.
type Mapper struct{}

// NewMapper creates a new mapper instance.
func NewMapper() *Mapper {
	return &Mapper{}
}

// MapOAuthConfig builds the *oauth2.Config the credential provider uses for
// token refresh. A missing scopes list defaults to readonly mailbox access,
// which is all the scan engine needs.
func (m *Mapper) MapOAuthConfig(creds Credentials) *oauth2.Config {
	scopes := creds.Google.Scopes
	if len(scopes) == 0 {
		scopes = []string{gmailv1.GmailReadonlyScope}
	}

	return &oauth2.Config{
		ClientID:     creds.Google.ClientID,
		ClientSecret: creds.Google.ClientSecret,
		RedirectURL:  creds.Google.RedirectURL,
		Scopes:       scopes,
		Endpoint:     google.Endpoint,
	}
}
