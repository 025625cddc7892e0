package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"evalgo.org/phoenix/internal/auth"
	"evalgo.org/phoenix/models"
)

// UpdateUserRequest represents a user update request
type UpdateUserRequest struct {
	Name    *string        `json:"name,omitempty"`
	Email   *string        `json:"email,omitempty"`
	Enabled *bool          `json:"enabled,omitempty"`
	Roles   *[]models.Role `json:"roles,omitempty"`
}

// ChangePasswordRequest represents a password change request
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// listUsers handles GET /api/v1/users
// @Summary List all users
// @Description Get a list of all users (admin only)
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {array} UserResponse "List of users"
// @Failure 401 {object} APIError "Unauthorized"
// @Failure 403 {object} APIError "Forbidden - Admin access required"
// @Failure 500 {object} APIError "Internal server error"
// @Router /users [get]
func (s *Server) listUsers(c echo.Context) error {
	users, err := s.storage.ListUsers()
	if err != nil {
		return InternalError("Failed to list users", err.Error())
	}

	response := make([]*UserResponse, len(users))
	for i, user := range users {
		response[i] = toUserResponse(user)
	}

	return c.JSON(http.StatusOK, response)
}

// getUser handles GET /api/v1/users/:id
// @Summary Get user by ID
// @Description Get a user by their ID (admin only)
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} UserResponse "User information"
// @Failure 401 {object} APIError "Unauthorized"
// @Failure 403 {object} APIError "Forbidden - Admin access required"
// @Failure 404 {object} APIError "User not found"
// @Router /users/{id} [get]
func (s *Server) getUser(c echo.Context) error {
	userID := c.Param("id")

	user, err := s.storage.GetUser(userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}

	return c.JSON(http.StatusOK, toUserResponse(user))
}

// updateUser handles PUT /api/v1/users/:id
// @Summary Update user
// @Description Update a user's information (admin only)
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param user body UpdateUserRequest true "User update data"
// @Success 200 {object} UserResponse "Updated user"
// @Failure 400 {object} APIError "Bad request"
// @Failure 404 {object} APIError "User not found"
// @Failure 409 {object} APIError "Conflict - Email already in use"
// @Router /users/{id} [put]
func (s *Server) updateUser(c echo.Context) error {
	userID := c.Param("id")

	user, err := s.storage.GetUser(userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}

	var req UpdateUserRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Email != nil {
		// Check if email is already in use by another user
		existingUser, err := s.storage.GetUserByEmail(*req.Email)
		if err == nil && existingUser.ID != user.ID {
			return echo.NewHTTPError(http.StatusConflict, "email already in use")
		}
		user.Email = *req.Email
	}
	if req.Enabled != nil {
		user.Enabled = *req.Enabled
	}
	if req.Roles != nil {
		for _, role := range *req.Roles {
			if !models.AssignableRole(role) {
				return BadRequestError("Invalid role", fmt.Sprintf("role %s cannot be assigned to a user", role))
			}
		}
		user.Roles = *req.Roles
	}

	user.UpdatedAt = time.Now()

	if err := s.storage.SaveUser(user); err != nil {
		return InternalError("Failed to update user", err.Error())
	}

	if adminID, ok := auth.GetUserID(c); ok {
		if claims, ok := auth.GetClaims(c); ok {
			s.logAuditEvent(c, adminID, claims.Username, "user_updated", "user", true, "")
		}
	}

	return c.JSON(http.StatusOK, toUserResponse(user))
}

// deleteUser handles DELETE /api/v1/users/:id
// @Summary Delete user
// @Description Delete a user (admin only)
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} MessageResponse "Successfully deleted"
// @Failure 400 {object} APIError "Bad request - Cannot delete own account"
// @Failure 404 {object} APIError "User not found"
// @Router /users/{id} [delete]
func (s *Server) deleteUser(c echo.Context) error {
	userID := c.Param("id")

	if _, err := s.storage.GetUser(userID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}

	// Prevent deleting yourself
	if currentUserID, ok := auth.GetUserID(c); ok {
		if currentUserID == userID {
			return echo.NewHTTPError(http.StatusBadRequest, "cannot delete your own account")
		}
	}

	if err := s.storage.DeleteUser(userID); err != nil {
		return InternalError("Failed to delete user", err.Error())
	}

	// A deleted user keeps no grants: scrub them from every server record so
	// the identity cannot be resurrected with old access.
	s.revokeAllGrants(userID)

	if adminID, ok := auth.GetUserID(c); ok {
		if claims, ok := auth.GetClaims(c); ok {
			s.logAuditEvent(c, adminID, claims.Username, "user_deleted", "user", true, "")
		}
	}

	return c.JSON(http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("user %s successfully deleted", userID),
	})
}

// changePassword handles POST /api/v1/users/password
// @Summary Change password
// @Description Change current user's password
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param password body ChangePasswordRequest true "Password change data"
// @Success 200 {object} MessageResponse "Password changed successfully"
// @Failure 400 {object} APIError "Bad request"
// @Failure 401 {object} APIError "Unauthorized - Current password incorrect"
// @Router /users/password [post]
func (s *Server) changePassword(c echo.Context) error {
	userID, ok := auth.GetUserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	user, err := s.storage.GetUser(userID)
	if err != nil {
		return InternalError("Failed to get user", err.Error())
	}

	if err := auth.ComparePassword(req.CurrentPassword, user.PasswordHash); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "current password is incorrect")
	}

	newPasswordHash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return InternalError("Failed to hash password", err.Error())
	}

	user.PasswordHash = newPasswordHash
	user.UpdatedAt = time.Now()

	if err := s.storage.SaveUser(user); err != nil {
		return InternalError("Failed to update password", err.Error())
	}

	if claims, ok := auth.GetClaims(c); ok {
		s.logAuditEvent(c, userID, claims.Username, "password_changed", "", true, "")
	}

	return c.JSON(http.StatusOK, MessageResponse{
		Message: "password changed successfully",
	})
}
