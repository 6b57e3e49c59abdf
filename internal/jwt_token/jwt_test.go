package jwttoken

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthconsent/internal/identity"
	dErrors "healthconsent/pkg/domain-errors"
	"healthconsent/pkg/platform/middleware/requesttime"
)

var jwtService = NewJWTService("test-signing-key", "healthconsent-test", time.Hour)

func Test_IssueAndValidate(t *testing.T) {
	worker := &identity.Principal{Subject: "w-7", Role: identity.RoleWorker, FacilityID: "fac-3"}

	token, err := jwtService.IssueToken(context.Background(), worker)
	require.NoError(t, err)

	got, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, worker, got)
}

func Test_ValidateToken_Expired(t *testing.T) {
	issuedAt := time.Now().Add(-2 * time.Hour)
	ctx := requesttime.WithTime(context.Background(), issuedAt)

	token, err := jwtService.IssueToken(ctx, &identity.Principal{Subject: "p-1", Role: identity.RolePatient})
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.ErrorContains(t, err, "token expired")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_WrongIssuer(t *testing.T) {
	other := NewJWTService("test-signing-key", "someone-else", time.Hour)
	token, err := other.IssueToken(context.Background(), &identity.Principal{Subject: "a-1", Role: identity.RoleAdmin})
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_WrongKey(t *testing.T) {
	other := NewJWTService("another-key", "healthconsent-test", time.Hour)
	token, err := other.IssueToken(context.Background(), &identity.Principal{Subject: "a-1", Role: identity.RoleAdmin})
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.ErrorContains(t, err, "invalid token")
}

func Test_ValidateToken_UnknownRole(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "x-1",
			Issuer:    "healthconsent-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_RejectsAlgorithmConfusion(t *testing.T) {
	claims := Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "a-1",
			Issuer:    "healthconsent-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}

	cases := []struct {
		name       string
		signMethod jwt.SigningMethod
		signKey    any
	}{
		{"hs512 header rejected", jwt.SigningMethodHS512, []byte("test-signing-key")},
		{"alg none rejected", jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			tokenString, err := jwt.NewWithClaims(tt.signMethod, claims).SignedString(tt.signKey)
			require.NoError(t, err)

			_, err = jwtService.ValidateToken(tokenString)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		})
	}
}
