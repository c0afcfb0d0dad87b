package services

import (
	"context"
	"crypto/subtle"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/velora-crm/outreach-backend/internal/pkg/errors"
	"github.com/velora-crm/outreach-backend/internal/logger"
	"github.com/velora-crm/outreach-backend/internal/utils"
)

// AuthService authenticates the operator control plane. There is one
// credential, configured through the environment; the password is expected as
// a bcrypt hash (OPERATOR_PASSWORD_HASH) with a plaintext fallback
// (OPERATOR_PASSWORD) for local development.
type AuthService interface {
	Login(ctx context.Context, username, password string) (string, error)
	VerifyToken(tokenString string) (string, error)
	AccessTTL() time.Duration
}

type authService struct {
	log          *logger.Logger
	username     string
	passwordHash string
	password     string
	jwtSecretKey string
	accessTTL    time.Duration
}

func NewAuthService(baseLog *logger.Logger) (AuthService, error) {
	log := baseLog.With("service", "AuthService")
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET_KEY"))
	if secret == "" {
		return nil, fmt.Errorf("missing JWT_SECRET_KEY")
	}
	s := &authService{
		log:          log,
		username:     utils.GetEnv("OPERATOR_USERNAME", "operator", log),
		passwordHash: strings.TrimSpace(os.Getenv("OPERATOR_PASSWORD_HASH")),
		password:     os.Getenv("OPERATOR_PASSWORD"),
		jwtSecretKey: secret,
		accessTTL:    time.Duration(utils.GetEnvAsInt("AUTH_ACCESS_TTL_MINUTES", 60, log)) * time.Minute,
	}
	if s.passwordHash == "" && s.password == "" {
		return nil, fmt.Errorf("missing OPERATOR_PASSWORD_HASH (or OPERATOR_PASSWORD)")
	}
	if s.passwordHash == "" {
		log.Warn("OPERATOR_PASSWORD_HASH not set, falling back to plaintext comparison")
	}
	return s, nil
}

func (as *authService) Login(ctx context.Context, username, password string) (string, error) {
	if subtle.ConstantTimeCompare([]byte(username), []byte(as.username)) != 1 {
		return "", apperrors.ErrUnauthorized
	}
	if as.passwordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(as.passwordHash), []byte(password)); err != nil {
			return "", apperrors.ErrUnauthorized
		}
	} else if subtle.ConstantTimeCompare([]byte(password), []byte(as.password)) != 1 {
		return "", apperrors.ErrUnauthorized
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   as.username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(as.accessTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(as.jwtSecretKey))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	as.log.Info("Operator logged in", "username", as.username)
	return signed, nil
}

// VerifyToken returns the operator subject for a valid token.
func (as *authService) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(as.jwtSecretKey), nil
	})
	if err != nil || !token.Valid {
		return "", apperrors.ErrUnauthorized
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", apperrors.ErrUnauthorized
	}
	return claims.Subject, nil
}

func (as *authService) AccessTTL() time.Duration {
	return as.accessTTL
}
