// Package auth provides authentication and authorization services for
// Phoenix. It implements JWT-based authentication for panel users and a
// separate, elevated service credential for the host agent.
//
// The two credential tiers are signed with different secrets: a user token
// can never validate as an agent credential, and the agent secret is never
// exposed to panel clients. The agent credential maps to an elevated store
// identity that bypasses the access predicate layer entirely.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"evalgo.org/phoenix/internal/config"
	"evalgo.org/phoenix/internal/rtstore"
	"evalgo.org/phoenix/models"
)

var (
	// ErrInvalidToken is returned when a JWT token is invalid
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a JWT token has expired
	ErrExpiredToken = errors.New("token has expired")
	// ErrInvalidCredentials is returned when credentials are incorrect
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserDisabled is returned when a user account is disabled
	ErrUserDisabled = errors.New("user account is disabled")
)

// Claims represents JWT custom claims
type Claims struct {
	UserID   string        `json:"user_id"`
	Username string        `json:"username"`
	Email    string        `json:"email,omitempty"`
	Roles    []models.Role `json:"roles"`
	jwt.RegisteredClaims

	// elevated is set when the token validated against the agent secret.
	// It never travels inside the token, so no role list a user token
	// carries can produce it.
	elevated bool
}

// MarkElevated records that the claims validated against the agent secret.
func (c *Claims) MarkElevated() {
	c.elevated = true
}

// Elevated reports whether the claims validated against the agent secret.
func (c *Claims) Elevated() bool {
	return c.elevated
}

// HasRole reports whether the claims carry the given role.
func (c *Claims) HasRole(role models.Role) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// StoreAuth maps validated claims to a realtime store identity. Elevation
// follows the validating secret, not the role list: only claims that came
// out of ValidateAgentToken yield an elevated identity.
func (c *Claims) StoreAuth() rtstore.Auth {
	return rtstore.Auth{
		UID:      c.UserID,
		Email:    c.Email,
		Elevated: c.elevated,
	}
}

// TokenPair represents an access token and refresh token
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"` // "Bearer"
}

// JWTService provides JWT authentication services
type JWTService struct {
	secret                 []byte
	agentSecret            []byte
	expiration             time.Duration
	refreshTokenExpiration time.Duration
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg *config.Config) *JWTService {
	return &JWTService{
		secret:                 []byte(cfg.Security.JWTSecret),
		agentSecret:            []byte(cfg.Security.AgentTokenSecret),
		expiration:             cfg.Security.JWTExpiration,
		refreshTokenExpiration: cfg.Security.RefreshTokenExpiration,
	}
}

// GenerateAgentToken generates the agent's elevated service token. It is
// signed with the agent secret, not the user secret, and carries only the
// agent role.
func GenerateAgentToken(agentSecret string, hostname string, expiration time.Duration) (string, error) {
	if agentSecret == "" {
		return "", fmt.Errorf("agent secret is required")
	}

	now := time.Now()
	expiresAt := now.Add(expiration)

	claims := Claims{
		UserID:   "agent:" + hostname,
		Username: "agent-" + hostname,
		Roles:    []models.Role{models.RoleAgent},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "phoenix-agent",
			Subject:   hostname,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(agentSecret))
}

// GenerateToken generates a new JWT access token for a user
func (s *JWTService) GenerateToken(user *models.User) (string, error) {
	if !user.Enabled {
		return "", ErrUserDisabled
	}

	now := time.Now()
	expiresAt := now.Add(s.expiration)

	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Roles:    user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "phoenix",
			Subject:   user.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates a user JWT token and returns the claims. A token
// carrying the agent role is rejected outright: agent credentials are only
// ever minted under the agent secret, so one signed with the user secret is
// forged or misassigned.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := validate(tokenString, s.secret)
	if err != nil {
		return nil, err
	}
	if claims.HasRole(models.RoleAgent) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateAgentToken validates an elevated agent token against the agent
// secret. A token signed with the user secret fails here, and vice versa.
func (s *JWTService) ValidateAgentToken(tokenString string) (*Claims, error) {
	claims, err := validate(tokenString, s.agentSecret)
	if err != nil {
		return nil, err
	}
	if !claims.HasRole(models.RoleAgent) {
		return nil, ErrInvalidToken
	}
	claims.MarkElevated()
	return claims, nil
}

func validate(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GenerateRefreshToken generates a random refresh token
func (s *JWTService) GenerateRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// HashRefreshToken hashes a refresh token for storage
func (s *JWTService) HashRefreshToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash refresh token: %w", err)
	}
	return string(hash), nil
}

// CompareRefreshToken compares a refresh token with its hash
func (s *JWTService) CompareRefreshToken(token, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
}

// GenerateTokenPair generates both access and refresh tokens
func (s *JWTService) GenerateTokenPair(user *models.User) (*TokenPair, string, error) {
	accessToken, err := s.GenerateToken(user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.GenerateRefreshToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate refresh token: %w", err)
	}

	expiresAt := time.Now().Add(s.expiration)

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		TokenType:    "Bearer",
	}, refreshToken, nil
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword compares a password with its hash
func ComparePassword(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return err
	}
	return nil
}
