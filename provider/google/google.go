// Package google exchanges Google sign-in tokens for verified external
// identities.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	identity "github.com/KaZuNa1/appointly-identity"
)

// ErrInvalidAudience is returned when the token was issued for a different
// client id.
var ErrInvalidAudience = errors.New("invalid google audience")

// ErrUnverifiedEmail is returned when Google has not verified the address;
// the identity core requires a provider-asserted email.
var ErrUnverifiedEmail = errors.New("google account email is not verified")

// Exchanger validates Google ID tokens and yields the external identity the
// core needs. It implements identity.IdentityExchanger.
type Exchanger struct {
	clientID   string
	httpClient *http.Client
}

var _ identity.IdentityExchanger = (*Exchanger)(nil)

// Option customizes an Exchanger.
type Option func(*Exchanger)

// WithHTTPClient overrides the HTTP client used against Google's endpoints.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Exchanger) {
		if client != nil {
			e.httpClient = client
		}
	}
}

// NewExchanger builds an exchanger bound to the application's OAuth client.
func NewExchanger(clientID string, opts ...Option) *Exchanger {
	e := &Exchanger{
		clientID:   clientID,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Exchange validates the ID token from the sign-in callback and returns the
// asserted subject id, email, and display name.
func (e *Exchanger) Exchange(ctx context.Context, idToken string) (*identity.ExternalIdentity, error) {
	service, err := oauth2.NewService(ctx, option.WithHTTPClient(e.httpClient))
	if err != nil {
		return nil, err
	}

	tokenInfoCall := service.Tokeninfo()
	tokenInfoCall.IdToken(idToken)
	tokenInfo, err := tokenInfoCall.Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	if tokenInfo.Audience != e.clientID {
		return nil, ErrInvalidAudience
	}

	if !tokenInfo.VerifiedEmail {
		return nil, ErrUnverifiedEmail
	}

	assertion := &identity.ExternalIdentity{
		ExternalID: tokenInfo.UserId,
		Email:      tokenInfo.Email,
	}

	// The token already asserted subject and email; the profile call only
	// enriches display fields, so its failure is not fatal.
	if userInfo, err := e.fetchUserInfo(ctx, idToken); err == nil {
		assertion.DisplayName = userInfo.Name
		assertion.AvatarURL = userInfo.Picture
	}

	return assertion, nil
}

func (e *Exchanger) fetchUserInfo(ctx context.Context, accessToken string) (*oauth2.Userinfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.googleapis.com/oauth2/v1/userinfo", nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("status code is not OK")
	}

	var userInfo oauth2.Userinfo
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, err
	}

	return &userInfo, nil
}
