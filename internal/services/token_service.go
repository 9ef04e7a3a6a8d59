package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// tokenValidity is the fixed window between issue and expiry.
const tokenValidity = 5 * time.Hour

type TokenService struct {
	secretKey []byte
	logger    zerolog.Logger
}

type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

func NewTokenService(secret string, logger zerolog.Logger) *TokenService {
	if secret == "" {
		secret = "default-secret-key-change-in-production"
		logger.Warn().Msg("JWT_SECRET not set, using default key")
	}

	return &TokenService{
		secretKey: []byte(secret),
		logger:    logger,
	}
}

// Issue signs a time-boxed credential carrying the subject and its role
// claims. There is no revocation list: validity is purely signature plus
// expiry.
func (s *TokenService) Issue(subject string, roles []string) (string, error) {
	now := time.Now()

	claims := &Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenValidity)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error generating token")
		return "", err
	}

	return tokenString, nil
}

// Validate fails closed: false on any parse or signature failure, on a
// subject mismatch, and once the expiry has passed.
func (s *TokenService) Validate(tokenString, expectedSubject string) bool {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc)
	if err != nil || !token.Valid {
		s.logger.Warn().Err(err).Msg("Token validation failed")
		return false
	}

	return claims.Subject == expectedSubject
}

// ExtractSubject verifies the signature and returns the subject claim. It
// does not check expiry; that is Validate's concern.
func (s *TokenService) ExtractSubject(tokenString string) (string, error) {
	claims, err := s.parseUnexpired(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *TokenService) ExtractRoles(tokenString string) ([]string, error) {
	claims, err := s.parseUnexpired(tokenString)
	if err != nil {
		return nil, err
	}
	return claims.Roles, nil
}

func (s *TokenService) parseUnexpired(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

func (s *TokenService) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, jwt.ErrSignatureInvalid
	}
	return s.secretKey, nil
}
