package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/phoenix/internal/config"
	"evalgo.org/phoenix/models"
)

func testService() *JWTService {
	return NewJWTService(&config.Config{
		Security: config.SecurityConfig{
			JWTSecret:              "user-secret-for-tests",
			AgentTokenSecret:       "agent-secret-for-tests",
			JWTExpiration:          time.Hour,
			RefreshTokenExpiration: 24 * time.Hour,
		},
	})
}

func testUser() *models.User {
	return &models.User{
		ID:       "user:alice",
		Username: "alice",
		Email:    "alice@example.com",
		Roles:    []models.Role{models.RoleUser},
		Enabled:  true,
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	s := testService()

	token, err := s.GenerateToken(testUser())
	require.NoError(t, err)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user:alice", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.True(t, claims.HasRole(models.RoleUser))
	assert.False(t, claims.HasRole(models.RoleAdmin))
}

func TestDisabledUserCannotGetToken(t *testing.T) {
	s := testService()
	u := testUser()
	u.Enabled = false

	_, err := s.GenerateToken(u)
	assert.ErrorIs(t, err, ErrUserDisabled)
}

func TestUserTokenIsNotAnAgentToken(t *testing.T) {
	s := testService()

	token, err := s.GenerateToken(testUser())
	require.NoError(t, err)

	// Signed with the user secret, so it must fail agent validation.
	_, err = s.ValidateAgentToken(token)
	assert.Error(t, err)
}

func TestAgentTokenValidation(t *testing.T) {
	s := testService()

	token, err := GenerateAgentToken("agent-secret-for-tests", "host-1", time.Hour)
	require.NoError(t, err)

	// Agent tokens must not validate against the user secret.
	_, err = s.ValidateToken(token)
	assert.Error(t, err)

	claims, err := s.ValidateAgentToken(token)
	require.NoError(t, err)
	assert.True(t, claims.HasRole(models.RoleAgent))

	auth := claims.StoreAuth()
	assert.True(t, auth.Elevated)
	assert.Equal(t, "agent:host-1", auth.UID)
}

func TestStoreAuthNotElevatedForUsers(t *testing.T) {
	s := testService()

	token, err := s.GenerateToken(testUser())
	require.NoError(t, err)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)

	auth := claims.StoreAuth()
	assert.False(t, auth.Elevated)
	assert.Equal(t, "user:alice", auth.UID)
	assert.Equal(t, "alice@example.com", auth.Email)
}

func TestUserTokenWithAgentRoleRejected(t *testing.T) {
	s := testService()

	// An admin mistake (or an attack) could put the agent role on a user
	// record. The resulting token is signed with the user secret and must
	// not validate at all, let alone elevate.
	u := testUser()
	u.Roles = []models.Role{models.RoleAgent}

	token, err := s.GenerateToken(u)
	require.NoError(t, err)

	_, err = s.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = s.ValidateAgentToken(token)
	assert.Error(t, err)
}

func TestElevationFollowsSecretNotRoles(t *testing.T) {
	// Claims that never passed agent validation stay unelevated whatever
	// their role list says.
	claims := &Claims{UserID: "user:mallory", Roles: []models.Role{models.RoleAgent}}
	assert.False(t, claims.Elevated())
	assert.False(t, claims.StoreAuth().Elevated)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NoError(t, ComparePassword("s3cret", hash))
	assert.ErrorIs(t, ComparePassword("wrong", hash), ErrInvalidCredentials)
}

func TestTokenPair(t *testing.T) {
	s := testService()

	pair, refresh, err := s.GenerateTokenPair(testUser())
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Equal(t, refresh, pair.RefreshToken)

	hash, err := s.HashRefreshToken(refresh)
	require.NoError(t, err)
	assert.NoError(t, s.CompareRefreshToken(refresh, hash))
	assert.Error(t, s.CompareRefreshToken("other", hash))
}
