package google

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTransport answers Google's tokeninfo and userinfo endpoints in-process.
type stubTransport struct {
	tokenInfo    string
	userInfo     string
	userInfoCode int
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	respond := func(code int, body string) *http.Response {
		return &http.Response{
			StatusCode: code,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}
	}

	switch {
	case strings.Contains(req.URL.Path, "tokeninfo"):
		return respond(http.StatusOK, s.tokenInfo), nil
	case strings.Contains(req.URL.Path, "userinfo"):
		code := s.userInfoCode
		if code == 0 {
			code = http.StatusOK
		}
		return respond(code, s.userInfo), nil
	default:
		return respond(http.StatusNotFound, `{}`), nil
	}
}

func stubExchanger(clientID string, transport *stubTransport) *Exchanger {
	return NewExchanger(clientID, WithHTTPClient(&http.Client{Transport: transport}))
}

func TestExchange(t *testing.T) {
	ctx := context.Background()

	t.Run("yields the asserted identity", func(t *testing.T) {
		exchanger := stubExchanger("client-1", &stubTransport{
			tokenInfo: `{"audience":"client-1","user_id":"sub-42","email":"user@example.com","verified_email":true}`,
			userInfo:  `{"name":"Test User","picture":"https://lh3.example.com/photo.jpg"}`,
		})

		assertion, err := exchanger.Exchange(ctx, "id-token")
		require.NoError(t, err)

		assert.Equal(t, "sub-42", assertion.ExternalID)
		assert.Equal(t, "user@example.com", assertion.Email)
		assert.Equal(t, "Test User", assertion.DisplayName)
		assert.Equal(t, "https://lh3.example.com/photo.jpg", assertion.AvatarURL)
	})

	t.Run("profile failure is not fatal", func(t *testing.T) {
		exchanger := stubExchanger("client-1", &stubTransport{
			tokenInfo:    `{"audience":"client-1","user_id":"sub-42","email":"user@example.com","verified_email":true}`,
			userInfo:     `{}`,
			userInfoCode: http.StatusInternalServerError,
		})

		assertion, err := exchanger.Exchange(ctx, "id-token")
		require.NoError(t, err)

		assert.Equal(t, "sub-42", assertion.ExternalID)
		assert.Empty(t, assertion.DisplayName)
	})

	t.Run("audience mismatch", func(t *testing.T) {
		exchanger := stubExchanger("client-1", &stubTransport{
			tokenInfo: `{"audience":"someone-else","user_id":"sub-42","email":"user@example.com","verified_email":true}`,
		})

		_, err := exchanger.Exchange(ctx, "id-token")
		assert.ErrorIs(t, err, ErrInvalidAudience)
	})

	t.Run("unverified email", func(t *testing.T) {
		exchanger := stubExchanger("client-1", &stubTransport{
			tokenInfo: `{"audience":"client-1","user_id":"sub-42","email":"user@example.com","verified_email":false}`,
		})

		_, err := exchanger.Exchange(ctx, "id-token")
		assert.ErrorIs(t, err, ErrUnverifiedEmail)
	})
}
