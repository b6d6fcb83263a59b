// Package auth implements the client side of the OAuth2 implicit grant against the Spotify accounts service.
//
// [Authorizer] builds the authorize URL the user agent is sent to; [ParseFragment] turns the redirect fragment
// (access_token, expires_in, state) back into a [Grant]. No token exchange happens: the identity provider returns
// the bearer token directly in the redirect.
package auth

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// DefaultAuthURL is the Spotify accounts authorize endpoint.
const DefaultAuthURL = spotifyauth.AuthURL

// Scopes is the capability set requested at login.
var Scopes = []string{
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopePlaylistModifyPrivate,
	spotifyauth.ScopeUserTopRead,
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopeUserReadPrivate,
}

// Authorizer builds implicit grant authorization URLs.
type Authorizer struct {
	config *oauth2.Config
}

// NewAuthorizer creates an [Authorizer] for the given client. authURL defaults to [DefaultAuthURL].
func NewAuthorizer(clientID, redirectURI, authURL string) (*Authorizer, error) {
	if clientID == "" {
		return nil, fmt.Errorf("missing client_id")
	}
	if redirectURI == "" {
		return nil, fmt.Errorf("missing redirect_uri")
	}
	if authURL == "" {
		authURL = DefaultAuthURL
	}

	return &Authorizer{
		config: &oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURI,
			Scopes:      Scopes,
			Endpoint:    oauth2.Endpoint{AuthURL: authURL},
		},
	}, nil
}

// URL returns the authorize URL for the given state.
//
// response_type is overridden to "token" and show_dialog forces the consent screen on every login.
func (a *Authorizer) URL(state string) string {
	return a.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("response_type", "token"),
		oauth2.SetAuthURLParam("show_dialog", "true"),
	)
}

// RedirectURI returns the configured redirect URI.
func (a *Authorizer) RedirectURI() string {
	return a.config.RedirectURL
}

// Grant is the token material carried in the redirect fragment.
type Grant struct {
	AccessToken string
	TokenType   string
	ExpiresIn   time.Duration
	State       string
}

// Token converts the grant into an [oauth2.Token] issued at the given time.
func (g Grant) Token(issuedAt time.Time) *oauth2.Token {
	tokenType := g.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken: g.AccessToken,
		TokenType:   tokenType,
		Expiry:      issuedAt.Add(g.ExpiresIn),
	}
}

// ParseFragment extracts a [Grant] from a redirect fragment such as "access_token=T&expires_in=3600".
//
// A leading "#" is ignored. Returns false when access_token or a positive expires_in is absent.
func ParseFragment(fragment string) (Grant, bool) {
	values, ok := parseFragment(fragment)
	if !ok {
		return Grant{}, false
	}

	token := values.Get("access_token")
	if token == "" {
		return Grant{}, false
	}

	seconds, err := strconv.Atoi(values.Get("expires_in"))
	if err != nil || seconds <= 0 {
		return Grant{}, false
	}

	return Grant{
		AccessToken: token,
		TokenType:   values.Get("token_type"),
		ExpiresIn:   time.Duration(seconds) * time.Second,
		State:       values.Get("state"),
	}, true
}

// DeniedReason returns the error parameter of a redirect fragment (e.g. "access_denied"), or "" if there is none.
func DeniedReason(fragment string) string {
	values, ok := parseFragment(fragment)
	if !ok {
		return ""
	}
	return values.Get("error")
}

func parseFragment(fragment string) (url.Values, bool) {
	fragment = strings.TrimPrefix(strings.TrimSpace(fragment), "#")
	if fragment == "" {
		return nil, false
	}

	values, err := url.ParseQuery(fragment)
	if err != nil {
		return nil, false
	}
	return values, true
}
