package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "nucleus/pkg/domain-errors"
)

// Claims are the JWT claims of a moderator token. The moderator name is the
// registered subject.
type Claims struct {
	Rights []string `json:"rights"`
	jwt.RegisteredClaims
}

// TokenService issues and validates moderator tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

func NewTokenService(signingKey, issuer string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Issue signs a token for p and returns it with its expiry.
func (s *TokenService) Issue(p *Principal) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	rights := make([]string, len(p.Rights))
	for i, r := range p.Rights {
		rights[i] = string(r)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Rights: rights,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Name,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate parses a token and returns its principal.
func (s *TokenService) Validate(tokenString string) (*Principal, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	rights, err := ParseRights(claims.Rights)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token claims")
	}
	return &Principal{Name: claims.Subject, Rights: rights}, nil
}
