package oauthflow

import (
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// AuthPlacement selects where client credentials are sent during token
// requests.
type AuthPlacement string

const (
	// AuthPlacementHeader sends the id/secret as an HTTP Basic credential
	// and omits the secret from the request body.
	AuthPlacementHeader AuthPlacement = "header"

	// AuthPlacementBody sends client_id/client_secret as body fields.
	AuthPlacementBody AuthPlacement = "body"
)

func (p AuthPlacement) authStyle() oauth2.AuthStyle {
	if p == AuthPlacementHeader {
		return oauth2.AuthStyleInHeader
	}
	return oauth2.AuthStyleInParams
}

// Params describes one OAuth2 client configuration, as collected from a
// form's auth settings.
type Params struct {
	AuthorizationURL   string        `json:"authorizationUrl,omitempty"`
	TokenURL           string        `json:"tokenUrl"`
	ClientID           string        `json:"clientId"`
	ClientSecret       string        `json:"clientSecret,omitempty"`
	Scope              string        `json:"scope,omitempty"`
	Placement          AuthPlacement `json:"authPlacement,omitempty"`
	RetainRefreshToken bool          `json:"retainRefreshToken,omitempty"`
}

func (p Params) scopes() []string {
	if strings.TrimSpace(p.Scope) == "" {
		return nil
	}
	return strings.Fields(p.Scope)
}

func (p Params) validateAuthCode() error {
	if p.AuthorizationURL == "" {
		return fmt.Errorf("[oauthflow] authorization URL is required")
	}
	return p.validateToken()
}

func (p Params) validateToken() error {
	if p.TokenURL == "" {
		return fmt.Errorf("[oauthflow] token URL is required")
	}
	if p.ClientID == "" {
		return fmt.Errorf("[oauthflow] client id is required")
	}
	return nil
}

func (p Params) config(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       p.scopes(),
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.AuthorizationURL,
			TokenURL:  p.TokenURL,
			AuthStyle: p.Placement.authStyle(),
		},
	}
}
