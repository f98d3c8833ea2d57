package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// SessionClaims is the JWT payload of a session credential: the subject
// account id and the role captured at issuance.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID  string `json:"uid,omitempty"`
	Role Role   `json:"role,omitempty"`
}

// Session is the identity a request recovers from its credential. The role
// is the one captured when the credential was issued; a later role change
// only takes effect when the credential is reissued.
type Session struct {
	AccountID uuid.UUID
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionService mints and recovers signed, stateless session credentials.
// There is no revocation list; logout is client-side discard.
type SessionService struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
	now        func() time.Time
}

// SessionOption customizes a SessionService.
type SessionOption func(*SessionService)

// WithSessionLogger overrides the service's logger.
func WithSessionLogger(l Logger) SessionOption {
	return func(s *SessionService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSessionClock injects a clock for tests.
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(s *SessionService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewSessionService creates a session issuer from the signing configuration.
func NewSessionService(cfg Config, opts ...SessionOption) *SessionService {
	cfg = cfg.withDefaults()

	s := &SessionService{
		signingKey: cfg.SigningKey,
		ttl:        cfg.SessionTTL,
		issuer:     cfg.Issuer,
		audience:   jwt.ClaimStrings(cfg.Audience),
		logger:     defLogger{},
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Issue signs a credential embedding the account id and its current role.
func (s *SessionService) Issue(account *Account) (string, error) {
	if account == nil || account.ID == uuid.Nil {
		return "", goerrors.New("cannot issue a session without an account", goerrors.CategoryInternal)
	}

	now := s.now()

	var aud jwt.ClaimStrings
	if len(s.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(s.audience))
		copy(aud, s.audience)
	}

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   account.ID.String(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
		UID:  account.ID.String(),
		Role: account.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session credential")
	}

	return signed, nil
}

// Recover verifies a presented credential's signature and expiry and
// returns the embedded identity.
func (s *SessionService) Recover(raw string) (*Session, error) {
	parserOptions := make([]jwt.ParserOption, 0, 3)
	parserOptions = append(parserOptions, jwt.WithTimeFunc(s.now))
	if s.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(s.issuer))
	}
	if len(s.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(s.audience...))
	}

	token, err := jwt.ParseWithClaims(raw, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			s.logger.Error("session recover encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrSessionInvalid.WithMetadata(map[string]any{
			"cause": err.Error(),
		})
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		s.logger.Error("session recover could not decode or validate claims")
		return nil, ErrSessionInvalid
	}

	accountID, err := uuid.Parse(claims.UID)
	if err != nil {
		return nil, ErrSessionInvalid.WithMetadata(map[string]any{
			"cause": "subject is not a valid account id",
		})
	}

	role, ok := ParseRole(string(claims.Role))
	if !ok {
		return nil, ErrSessionInvalid.WithMetadata(map[string]any{
			"cause": "role claim is outside the closed enum",
		})
	}

	session := &Session{
		AccountID: accountID,
		Role:      role,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}

	return session, nil
}
