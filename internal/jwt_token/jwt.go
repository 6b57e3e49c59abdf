package jwttoken

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"healthconsent/internal/identity"
	dErrors "healthconsent/pkg/domain-errors"
	"healthconsent/pkg/platform/middleware/requesttime"
)

// Claims are the bearer token claims. Subject is the patient, worker or admin id.
type Claims struct {
	Role       string `json:"role"`
	FacilityID string `json:"facility_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTService issues and validates HS256 bearer tokens.
type JWTService struct {
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
}

func NewJWTService(signingKey string, issuer string, tokenTTL time.Duration) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		tokenTTL:   tokenTTL,
	}
}

// IssueToken signs a token for the principal. Used by cmd/tokengen and tests.
func (s *JWTService) IssueToken(ctx context.Context, p *identity.Principal) (string, error) {
	if p == nil {
		return "", dErrors.New(dErrors.CodeBadRequest, "principal is required")
	}
	now := requesttime.Now(ctx)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:       p.Role.String(),
		FacilityID: p.FacilityID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return signed, nil
}

// ValidateToken verifies signature, algorithm, expiry and issuer, then builds
// the principal from the claims.
func (s *JWTService) ValidateToken(tokenString string) (*identity.Principal, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return identity.NewPrincipal(claims.Subject, claims.Role, claims.FacilityID)
}
