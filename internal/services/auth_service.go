package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/earnhub/backend/internal/database"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

// Role scopes what a bearer token may call
type Role string

const (
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
	RoleService Role = "service" // task/video subsystem
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin || r == RoleService
}

var ErrInvalidToken = errors.New("invalid or revoked token")

// Claims identifies the caller. Subject is the account id for user tokens and the operator or
// service name otherwise.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

type AuthService struct {
	store  database.Store
	hasher PasswordHasher
	redis  redis.Cmdable
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

func NewAuthService(store database.Store, hasher PasswordHasher, rdb redis.Cmdable) *AuthService {
	return &AuthService{
		store:  store,
		hasher: hasher,
		redis:  rdb,
		secret: []byte(viper.GetString("jwt.secret_key")),
		expiry: time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour,
		now:    time.Now,
	}
}

// IssueToken signs an HS256 token for subject.
func (s *AuthService) IssueToken(subject string, role Role) (string, time.Time, error) {
	if subject == "" || !role.Valid() {
		return "", time.Time{}, fmt.Errorf("cannot issue token for %q with role %q", subject, role)
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("jwt secret key is not configured")
	}

	now := s.now()
	expiresAt := now.Add(s.expiry)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Login exchanges an account id and its transaction password for a user token.
func (s *AuthService) Login(ctx context.Context, accountID, password string) (string, time.Time, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			log.Printf("[AUTH] Login failed for unknown account %s", accountID)
			return "", time.Time{}, ErrAuthenticationFailure
		}
		return "", time.Time{}, err
	}
	if account.TransactionPasswordHash == "" || !s.hasher.Verify(password, account.TransactionPasswordHash) {
		log.Printf("[AUTH] Invalid password for account %s", accountID)
		return "", time.Time{}, ErrAuthenticationFailure
	}

	log.Printf("[AUTH] Login successful for account %s", accountID)
	return s.IssueToken(accountID, RoleUser)
}

// ParseToken validates the signature, expiry and blacklist of a token.
func (s *AuthService) ParseToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.Role.Valid() || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	n, err := s.redis.Exists(ctx, blacklistKey(tokenString)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: token blacklist: %v", database.ErrStoreUnavailable, err)
	}
	if n > 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Logout blacklists a token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.ParseToken(ctx, tokenString)
	if err != nil {
		return err
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, blacklistKey(tokenString), "1", ttl).Err(); err != nil {
		log.Printf("[AUTH] Failed to blacklist token: %v", err)
		return fmt.Errorf("%w: token blacklist: %v", database.ErrStoreUnavailable, err)
	}
	log.Printf("[AUTH] Token revoked for %s", claims.Subject)
	return nil
}

func blacklistKey(token string) string {
	return fmt.Sprintf("blacklist:%s", token)
}
