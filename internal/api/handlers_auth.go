package api

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"evalgo.org/phoenix/internal/auth"
	"evalgo.org/phoenix/models"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username string        `json:"username" validate:"required,min=3,max=50"`
	Password string        `json:"password" validate:"required,min=8"`
	Email    string        `json:"email" validate:"required,email"`
	Name     string        `json:"name"`
	Roles    []models.Role `json:"roles"`
}

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	UserID       string `json:"user_id" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	User         *UserResponse `json:"user"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresAt    time.Time     `json:"expires_at"`
	TokenType    string        `json:"token_type"`
}

// UserResponse represents user data returned to client (without sensitive fields)
type UserResponse struct {
	ID          string        `json:"id"`
	Username    string        `json:"username"`
	Email       string        `json:"email"`
	Name        string        `json:"name"`
	Roles       []models.Role `json:"roles"`
	Enabled     bool          `json:"enabled"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	LastLoginAt *time.Time    `json:"last_login_at,omitempty"`
}

// login handles POST /api/v1/auth/login
// @Summary User login
// @Description Authenticate user with username and password, returns JWT tokens
// @Tags Authentication
// @Accept json
// @Produce json
// @Param credentials body LoginRequest true "Login credentials"
// @Success 200 {object} LoginResponse "Successfully logged in"
// @Failure 400 {object} APIError "Bad request - Invalid credentials format"
// @Failure 401 {object} APIError "Unauthorized - Invalid username or password"
// @Failure 500 {object} APIError "Internal server error"
// @Router /auth/login [post]
func (s *Server) login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	user, err := s.storage.GetUserByUsername(req.Username)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	}

	if !user.Enabled {
		return echo.NewHTTPError(http.StatusUnauthorized, "user account is disabled")
	}

	if err := auth.ComparePassword(req.Password, user.PasswordHash); err != nil {
		s.logAuditEvent(c, user.ID, user.Username, "login_failed", "", false, "invalid password")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	}

	tokenPair, refreshToken, err := s.jwt.GenerateTokenPair(user)
	if err != nil {
		return InternalError("Failed to generate tokens", err.Error())
	}

	if err := s.saveRefreshToken(user.ID, refreshToken); err != nil {
		return InternalError("Failed to save refresh token", err.Error())
	}

	// Update last login time
	now := time.Now()
	user.LastLoginAt = &now
	user.UpdatedAt = now
	if err := s.storage.SaveUser(user); err != nil {
		log.Printf("Warning: failed to update last login time: %v", err)
	}

	s.logAuditEvent(c, user.ID, user.Username, "login", "", true, "")

	return c.JSON(http.StatusOK, LoginResponse{
		User:         toUserResponse(user),
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    tokenPair.ExpiresAt,
		TokenType:    tokenPair.TokenType,
	})
}

// register handles POST /api/v1/auth/register
// @Summary Register new user
// @Description Register a new user account (admin only)
// @Tags Authentication
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param user body RegisterRequest true "User registration data"
// @Success 201 {object} UserResponse "Successfully created user"
// @Failure 400 {object} APIError "Bad request - Invalid data or validation errors"
// @Failure 409 {object} APIError "Conflict - Username or email already exists"
// @Failure 500 {object} APIError "Internal server error"
// @Router /auth/register [post]
func (s *Server) register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	if _, err := s.storage.GetUserByUsername(req.Username); err == nil {
		return echo.NewHTTPError(http.StatusConflict, "username already exists")
	}

	if _, err := s.storage.GetUserByEmail(req.Email); err == nil {
		return echo.NewHTTPError(http.StatusConflict, "email already exists")
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return InternalError("Failed to hash password", err.Error())
	}

	// Default to the ordinary user role
	roles := req.Roles
	if len(roles) == 0 {
		roles = []models.Role{models.RoleUser}
	}
	for _, role := range roles {
		if !models.AssignableRole(role) {
			return BadRequestError("Invalid role", fmt.Sprintf("role %s cannot be assigned to a user", role))
		}
	}

	user := &models.User{
		Context:      "https://schema.org",
		Type:         "Person",
		ID:           fmt.Sprintf("user-%s", uuid.New().String()),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Name:         req.Name,
		Roles:        roles,
		Enabled:      true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := s.storage.SaveUser(user); err != nil {
		return InternalError("Failed to create user", err.Error())
	}

	if userID, ok := auth.GetUserID(c); ok {
		s.logAuditEvent(c, userID, req.Username, "user_created", "user", true, "")
	}

	return c.JSON(http.StatusCreated, toUserResponse(user))
}

// refresh handles POST /api/v1/auth/refresh
// @Summary Refresh access token
// @Description Get a new access token using a refresh token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param refresh body RefreshRequest true "Refresh token"
// @Success 200 {object} LoginResponse "Successfully refreshed token"
// @Failure 400 {object} APIError "Bad request - Invalid refresh token format"
// @Failure 401 {object} APIError "Unauthorized - Invalid or expired refresh token"
// @Failure 500 {object} APIError "Internal server error"
// @Router /auth/refresh [post]
func (s *Server) refresh(c echo.Context) error {
	var req RefreshRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	if req.UserID == "" || req.RefreshToken == "" {
		return BadRequestError("Invalid request body", "user_id and refresh_token are required")
	}

	// Refresh tokens are stored hashed, so the match is a bcrypt comparison
	// against the user's live tokens.
	stored, err := s.storage.GetRefreshTokensByUserID(req.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
	}

	var matched *models.RefreshToken
	for _, rt := range stored {
		if rt.Revoked || time.Now().After(rt.ExpiresAt) {
			continue
		}
		if s.jwt.CompareRefreshToken(req.RefreshToken, rt.Token) == nil {
			matched = rt
			break
		}
	}
	if matched == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
	}

	user, err := s.storage.GetUser(req.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
	}
	if !user.Enabled {
		return echo.NewHTTPError(http.StatusUnauthorized, "user account is disabled")
	}

	tokenPair, refreshToken, err := s.jwt.GenerateTokenPair(user)
	if err != nil {
		return InternalError("Failed to generate tokens", err.Error())
	}

	// Rotate: the presented token is single-use.
	if err := s.storage.RevokeRefreshToken(matched.ID); err != nil {
		log.Printf("Warning: failed to revoke refresh token %s: %v", matched.ID, err)
	}
	if err := s.saveRefreshToken(user.ID, refreshToken); err != nil {
		return InternalError("Failed to save refresh token", err.Error())
	}

	s.logAuditEvent(c, user.ID, user.Username, "token_refreshed", "", true, "")

	return c.JSON(http.StatusOK, LoginResponse{
		User:         toUserResponse(user),
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    tokenPair.ExpiresAt,
		TokenType:    tokenPair.TokenType,
	})
}

// logout handles POST /api/v1/auth/logout
// @Summary Logout user
// @Description Revoke refresh tokens and logout user
// @Tags Authentication
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} MessageResponse "Successfully logged out"
// @Failure 401 {object} APIError "Unauthorized"
// @Failure 500 {object} APIError "Internal server error"
// @Router /auth/logout [post]
func (s *Server) logout(c echo.Context) error {
	userID, ok := auth.GetUserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	// Revoke all live refresh tokens for the user
	if tokens, err := s.storage.GetRefreshTokensByUserID(userID); err == nil {
		for _, rt := range tokens {
			if rt.Revoked {
				continue
			}
			if err := s.storage.RevokeRefreshToken(rt.ID); err != nil {
				log.Printf("Warning: failed to revoke refresh token %s: %v", rt.ID, err)
			}
		}
	}

	if claims, ok := auth.GetClaims(c); ok {
		s.logAuditEvent(c, userID, claims.Username, "logout", "", true, "")
	}

	return c.JSON(http.StatusOK, MessageResponse{
		Message: "successfully logged out",
	})
}

// me handles GET /api/v1/auth/me
// @Summary Get current user
// @Description Get information about the currently authenticated user
// @Tags Authentication
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UserResponse "Current user information"
// @Failure 401 {object} APIError "Unauthorized"
// @Failure 500 {object} APIError "Internal server error"
// @Router /auth/me [get]
func (s *Server) me(c echo.Context) error {
	userID, ok := auth.GetUserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	user, err := s.storage.GetUser(userID)
	if err != nil {
		return InternalError("Failed to get user", err.Error())
	}

	return c.JSON(http.StatusOK, toUserResponse(user))
}

// saveRefreshToken hashes and stores a freshly minted refresh token.
func (s *Server) saveRefreshToken(userID, refreshToken string) error {
	hashed, err := s.jwt.HashRefreshToken(refreshToken)
	if err != nil {
		return err
	}

	return s.storage.SaveRefreshToken(&models.RefreshToken{
		ID:        fmt.Sprintf("refresh-%s", uuid.New().String()),
		UserID:    userID,
		Token:     hashed,
		ExpiresAt: time.Now().Add(s.config.Security.RefreshTokenExpiration),
		CreatedAt: time.Now(),
		Revoked:   false,
	})
}

// toUserResponse converts a User model to UserResponse (removes sensitive fields)
func toUserResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		Name:        user.Name,
		Roles:       user.Roles,
		Enabled:     user.Enabled,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
		LastLoginAt: user.LastLoginAt,
	}
}

// logAuditEvent logs an authentication/authorization event
func (s *Server) logAuditEvent(c echo.Context, userID, username, action, resource string, success bool, errorMsg string) {
	auditLog := &models.AuditLog{
		Timestamp:    time.Now(),
		UserID:       userID,
		Username:     username,
		Action:       action,
		Resource:     resource,
		Method:       c.Request().Method,
		Path:         c.Request().URL.Path,
		IPAddress:    c.RealIP(),
		UserAgent:    c.Request().UserAgent(),
		Success:      success,
		ErrorMessage: errorMsg,
	}

	if err := s.storage.SaveAuditLog(auditLog); err != nil {
		log.Printf("Warning: failed to save audit log: %v", err)
	}
}
