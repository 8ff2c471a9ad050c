package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exlab-backend/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAdminDisabled      = errors.New("admin secret is not configured")
	ErrRunNotStarted      = errors.New("no active run")
	ErrRunInvalidated     = errors.New("run replaced by a newer one")
)

// TokenType distinguishes participant vs admin tokens.
type TokenType string

const (
	TokenTypeParticipant TokenType = "participant"
	TokenTypeAdmin       TokenType = "admin"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	UserID    string    `json:"user_id,omitempty"` // Participant only
	RunID     string    `json:"run_id,omitempty"`  // Participant only
}

// AuthService issues and validates tokens and tracks each user's active run.
type AuthService struct {
	cfg *config.Config
	rdb *redis.Client
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client) *AuthService {
	return &AuthService{cfg: cfg, rdb: rdb}
}

// HashSecret hashes the admin secret for ADMIN_SECRET_HASH.
func HashSecret(secret string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	return string(hash), err
}

// CheckAdminSecret compares secret against the configured bcrypt hash.
func (s *AuthService) CheckAdminSecret(secret string) error {
	if s.cfg.AdminSecretHash == "" {
		return ErrAdminDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.AdminSecretHash), []byte(secret)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// GenerateAdminToken creates a JWT for the admin panel.
func (s *AuthService) GenerateAdminToken() (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType: TokenTypeAdmin,
	}
	return s.sign(claims)
}

// GenerateParticipantToken creates a JWT for a run and makes that run the
// user's active one. Tokens of earlier runs stop validating.
func (s *AuthService) GenerateParticipantToken(ctx context.Context, userID, runID string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType: TokenTypeParticipant,
		UserID:    userID,
		RunID:     runID,
	}
	signed, err := s.sign(claims)
	if err != nil {
		return "", err
	}

	if err := s.rdb.Set(ctx, config.CacheKey.ActiveRunKey(userID), runID, s.cfg.ProgressTTL).Err(); err != nil {
		return "", fmt.Errorf("store active run: %w", err)
	}
	return signed, nil
}

func (s *AuthService) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// ActiveRun returns the user's active run id, or "" when there is none.
func (s *AuthService) ActiveRun(ctx context.Context, userID string) (string, error) {
	runID, err := s.rdb.Get(ctx, config.CacheKey.ActiveRunKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("check active run: %w", err)
	}
	return runID, nil
}

// ValidateActiveRun checks that runID is still the user's active run.
func (s *AuthService) ValidateActiveRun(ctx context.Context, userID, runID string) error {
	active, err := s.ActiveRun(ctx, userID)
	if err != nil {
		return err
	}
	switch active {
	case "":
		return ErrRunNotStarted
	case runID:
		return nil
	default:
		return ErrRunInvalidated
	}
}

// EndRun forgets the user's active run.
func (s *AuthService) EndRun(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, config.CacheKey.ActiveRunKey(userID)).Err()
}
