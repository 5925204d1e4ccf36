package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongPurpose = errors.New("token issued for another purpose")
)

// Purpose separates operator session tokens from the single-use links mailed to doctors.
type Purpose string

const (
	PurposeAccess            Purpose = "access"
	PurposeEmailVerification Purpose = "email_verification"
	PurposeRecovery          Purpose = "recovery"
)

// Claims is the payload of every token issued by this service.
type Claims struct {
	jwt.RegisteredClaims
	Email   string  `json:"email"`
	Role    string  `json:"role,omitempty"`
	Purpose Purpose `json:"purpose"`
}

type JWTService interface {
	Generate(subject, email, role string, purpose Purpose, ttl time.Duration) (string, error)
	Validate(token string, purpose Purpose) (*Claims, error)
}

type jwtService struct {
	secret []byte
	issuer string
}

func NewJWTService(secret, issuer string) JWTService {
	return &jwtService{secret: []byte(secret), issuer: issuer}
}

func (s *jwtService) Generate(subject, email, role string, purpose Purpose, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:   email,
		Role:    role,
		Purpose: purpose,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

func (s *jwtService) Validate(token string, purpose Purpose) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Purpose != purpose {
		return nil, ErrWrongPurpose
	}
	return claims, nil
}
