package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/docvault-api/internal/models"
	appErrors "github.com/noah-isme/docvault-api/pkg/errors"
)

const testTokenSecret = "test-secret"

func signTestToken(t *testing.T, secret string, claims *models.JWTClaims) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: testTokenSecret, Issuer: "platform"})
	token := signTestToken(t, testTokenSecret, &models.JWTClaims{
		UserID:           "user-1",
		TenantID:         "tenant-a",
		Role:             models.RoleMember,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "platform"},
	})

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "tenant-a", claims.TenantID)
	assert.Equal(t, models.RoleMember, claims.Role)
}

func TestAuthServiceValidateTokenRejects(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: testTokenSecret, Issuer: "platform"})

	cases := map[string]string{
		"wrong secret": signTestToken(t, "other", &models.JWTClaims{UserID: "u", TenantID: "t", RegisteredClaims: jwt.RegisteredClaims{Issuer: "platform"}}),
		"no tenant":    signTestToken(t, testTokenSecret, &models.JWTClaims{UserID: "u", RegisteredClaims: jwt.RegisteredClaims{Issuer: "platform"}}),
		"wrong issuer": signTestToken(t, testTokenSecret, &models.JWTClaims{UserID: "u", TenantID: "t", RegisteredClaims: jwt.RegisteredClaims{Issuer: "elsewhere"}}),
		"expired": signTestToken(t, testTokenSecret, &models.JWTClaims{UserID: "u", TenantID: "t", RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "platform",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}),
		"unknown role": signTestToken(t, testTokenSecret, &models.JWTClaims{UserID: "u", TenantID: "t", Role: "ROOT", RegisteredClaims: jwt.RegisteredClaims{Issuer: "platform"}}),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
		})
	}
}

func TestAuthServiceDefaultsRoleAndSubject(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: testTokenSecret})
	token := signTestToken(t, testTokenSecret, &models.JWTClaims{
		TenantID:         "tenant-a",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-9"},
	})

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-9", claims.UserID)
	assert.Equal(t, models.RoleViewer, claims.Role)
}
