package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/campuscode/autograder-api/internal/dto"
	"github.com/campuscode/autograder-api/internal/repository"
)

// ErrInvalidIdentity indicates the supplied identity token failed
// verification.
var ErrInvalidIdentity = errors.New("identity could not be verified")

// ErrUnknownIdentity indicates a verified identity with no portal account.
var ErrUnknownIdentity = errors.New("identity is not registered")

// IdentityVerifier validates an externally issued identity token and resolves
// the subject email. Token issuance itself stays outside this service.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// AuthService exchanges verified identities for portal sessions.
type AuthService interface {
	Login(ctx context.Context, payload dto.LoginRequest) (dto.LoginResponse, error)
}

type authService struct {
	users     repository.UserRepository
	verifier  IdentityVerifier
	jwtSecret string
	tokenTTL  time.Duration
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAuthService constructs an AuthService.
func NewAuthService(users repository.UserRepository, verifier IdentityVerifier, jwtSecret string, tokenTTL time.Duration, validate *validator.Validate, logger zerolog.Logger) AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &authService{
		users:     users,
		verifier:  verifier,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		validator: validate,
		logger:    logger.With().Str("component", "auth_service").Logger(),
	}
}

func (s *authService) Login(ctx context.Context, payload dto.LoginRequest) (dto.LoginResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.LoginResponse{}, err
	}

	email, err := s.verifier.Verify(ctx, payload.Token)
	if err != nil {
		s.logger.Warn().Err(err).Msg("identity verification failed")
		return dto.LoginResponse{}, ErrInvalidIdentity
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.LoginResponse{}, ErrUnknownIdentity
		}
		return dto.LoginResponse{}, err
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  fmt.Sprintf("%d", user.ID),
		"role": user.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(s.tokenTTL).Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
	if err != nil {
		return dto.LoginResponse{}, fmt.Errorf("sign session token: %w", err)
	}

	return dto.LoginResponse{
		AccessToken: token,
		Role:        user.Role,
		UserID:      user.ID,
	}, nil
}

// hmacVerifier verifies HS256 identity tokens issued by the identity
// provider with a shared secret, and extracts the email claim.
type hmacVerifier struct {
	secret []byte
}

// NewHMACVerifier constructs an IdentityVerifier for shared-secret identity
// tokens.
func NewHMACVerifier(secret string) IdentityVerifier {
	return &hmacVerifier{secret: []byte(secret)}
}

func (v *hmacVerifier) Verify(_ context.Context, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid identity token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid identity claims")
	}

	email, _ := claims["email"].(string)
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("identity token missing email claim")
	}
	return email, nil
}
