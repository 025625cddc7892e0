package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"evalgo.org/phoenix/internal/auth"
	"evalgo.org/phoenix/internal/rtstore"
	"evalgo.org/phoenix/internal/storage"
	"evalgo.org/phoenix/models"
)

// listServers handles GET /api/v1/servers
// @Summary List servers
// @Description List servers visible to the caller. Admins see every server;
// @Description ordinary users see only servers they hold a grant on.
// @Tags Servers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ServersResponse "List of servers"
// @Failure 401 {object} APIError "Unauthorized"
// @Failure 500 {object} APIError "Internal server error"
// @Router /servers [get]
func (s *Server) listServers(c echo.Context) error {
	claims, ok := auth.GetClaims(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var (
		servers []*models.Server
		err     error
	)
	if claims.HasRole(models.RoleAdmin) {
		filters := make(map[string]interface{})
		if gameType := c.QueryParam("gameType"); gameType != "" {
			filters["gameType"] = gameType
		}
		servers, err = s.storage.ListServers(filters)
	} else {
		servers, err = s.storage.ListServersForUser(claims.UserID)
	}
	if err != nil {
		return InternalError("Failed to list servers", err.Error())
	}

	return c.JSON(http.StatusOK, ServersResponse{
		Count:   len(servers),
		Servers: servers,
	})
}

// getServer handles GET /api/v1/servers/:id
// @Summary Get server
// @Description Get a server by ID. Requires a grant unless the caller is an admin.
// @Tags Servers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server ID"
// @Success 200 {object} models.Server "Server record"
// @Failure 401 {object} APIError "Unauthorized"
// @Failure 404 {object} APIError "Server not found"
// @Router /servers/{id} [get]
func (s *Server) getServer(c echo.Context) error {
	id := c.Param("id")

	claims, ok := auth.GetClaims(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	server, err := s.storage.GetServer(id)
	if err != nil {
		// A missing server and a missing grant are indistinguishable to the
		// caller.
		return NotFoundError("server", id)
	}

	if !claims.HasRole(models.RoleAdmin) && !server.UserAllowed(claims.UserID) {
		return NotFoundError("server", id)
	}

	return c.JSON(http.StatusOK, server)
}

// createServer handles POST /api/v1/servers
// @Summary Create server
// @Description Register a new server (admin only). The record names the server
// @Description for the panel; launch configuration stays on the agent host.
// @Tags Servers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param server body models.Server true "Server record"
// @Success 201 {object} models.Server "Created server"
// @Failure 400 {object} APIError "Bad request - Validation errors"
// @Failure 500 {object} APIError "Internal server error"
// @Router /servers [post]
func (s *Server) createServer(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return BadRequestError("Failed to read request body", err.Error())
	}

	result, _ := s.validator.ValidateServer(body)
	if !result.Valid {
		return &APIError{
			Code:    http.StatusBadRequest,
			Message: "Server validation failed",
			Context: map[string]interface{}{"errors": result.Errors},
		}
	}

	var server models.Server
	if err := json.Unmarshal(body, &server); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	if server.ID == "" {
		server.ID = models.GenerateID("server")
	}
	if server.AllowedUsers == nil {
		server.AllowedUsers = make(map[string]bool)
	}
	// Status is agent-owned; a fresh record starts stopped.
	server.Status = &models.ServerStatus{State: models.StateStopped}

	if err := s.storage.SaveServer(&server); err != nil {
		return InternalError("Failed to create server", err.Error())
	}

	s.mirrorServer(&server)

	if adminID, ok := auth.GetUserID(c); ok {
		if claims, ok := auth.GetClaims(c); ok {
			s.logAuditEvent(c, adminID, claims.Username, "server_created", server.ID, true, "")
		}
	}

	return c.JSON(http.StatusCreated, server)
}

// updateServer handles PUT /api/v1/servers/:id
// @Summary Update server
// @Description Update a server record (admin only). The status field is
// @Description agent-owned and preserved across updates.
// @Tags Servers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server ID"
// @Param server body models.Server true "Server record"
// @Success 200 {object} models.Server "Updated server"
// @Failure 400 {object} APIError "Bad request"
// @Failure 404 {object} APIError "Server not found"
// @Router /servers/{id} [put]
func (s *Server) updateServer(c echo.Context) error {
	id := c.Param("id")

	existing, err := s.storage.GetServer(id)
	if err != nil {
		return NotFoundError("server", id)
	}

	var server models.Server
	if err := c.Bind(&server); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	// Preserve identity, revision, and the agent-owned status
	server.ID = id
	server.Rev = existing.Rev
	server.Status = existing.Status
	if server.AllowedUsers == nil {
		server.AllowedUsers = existing.AllowedUsers
	}

	if err := s.storage.SaveServer(&server); err != nil {
		return InternalError("Failed to update server", err.Error())
	}

	s.mirrorServer(&server)

	if adminID, ok := auth.GetUserID(c); ok {
		if claims, ok := auth.GetClaims(c); ok {
			s.logAuditEvent(c, adminID, claims.Username, "server_updated", id, true, "")
		}
	}

	return c.JSON(http.StatusOK, server)
}

// deleteServer handles DELETE /api/v1/servers/:id
// @Summary Delete server
// @Description Delete a server record (admin only)
// @Tags Servers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server ID"
// @Success 200 {object} MessageResponse "Successfully deleted"
// @Failure 404 {object} APIError "Server not found"
// @Router /servers/{id} [delete]
func (s *Server) deleteServer(c echo.Context) error {
	id := c.Param("id")

	server, err := s.storage.GetServer(id)
	if err != nil {
		return NotFoundError("server", id)
	}

	if err := s.storage.DeleteServer(id, server.Rev); err != nil {
		return InternalError("Failed to delete server", err.Error())
	}

	// Remove from the realtime tree; subscribers see the deletion as a nil
	// event.
	if err := s.store.Set(rtstore.Auth{Elevated: true}, "servers/"+id, nil); err != nil {
		log.Printf("Warning: failed to remove server %s from store: %v", id, err)
	}

	if adminID, ok := auth.GetUserID(c); ok {
		if claims, ok := auth.GetClaims(c); ok {
			s.logAuditEvent(c, adminID, claims.Username, "server_deleted", id, true, "")
		}
	}

	return c.JSON(http.StatusOK, MessageResponse{
		Message: "server deleted successfully",
		ID:      id,
	})
}

// grantAccess handles POST /api/v1/servers/:id/grants
// @Summary Grant server access
// @Description Grant a user access to a server (admin only). Presence in the
// @Description grant set is access; there are no partial states.
// @Tags Servers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server ID"
// @Param grant body GrantRequest true "User to grant"
// @Success 200 {object} models.Server "Updated server"
// @Failure 400 {object} APIError "Bad request"
// @Failure 404 {object} APIError "Server not found"
// @Router /servers/{id}/grants [post]
func (s *Server) grantAccess(c echo.Context) error {
	id := c.Param("id")

	var req GrantRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	if req.UserID == "" {
		return BadRequestError("Invalid request body", "userId is required")
	}

	server, err := s.storage.GetServer(id)
	if err != nil {
		return NotFoundError("server", id)
	}

	if server.AllowedUsers == nil {
		server.AllowedUsers = make(map[string]bool)
	}
	server.AllowedUsers[req.UserID] = true

	if err := s.storage.SaveServer(server); err != nil {
		return InternalError("Failed to save grant", err.Error())
	}

	s.mirrorServer(server)

	if adminID, ok := auth.GetUserID(c); ok {
		if claims, ok := auth.GetClaims(c); ok {
			s.logAuditEvent(c, adminID, claims.Username, "grant_added", id, true, "")
		}
	}

	return c.JSON(http.StatusOK, server)
}

// revokeAccess handles DELETE /api/v1/servers/:id/grants/:userId
// @Summary Revoke server access
// @Description Revoke a user's access to a server (admin only). Revocation is
// @Description effective on the next store operation the user attempts.
// @Tags Servers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server ID"
// @Param userId path string true "User ID"
// @Success 200 {object} models.Server "Updated server"
// @Failure 404 {object} APIError "Server not found"
// @Router /servers/{id}/grants/{userId} [delete]
func (s *Server) revokeAccess(c echo.Context) error {
	id := c.Param("id")
	userID := c.Param("userId")

	server, err := s.storage.GetServer(id)
	if err != nil {
		return NotFoundError("server", id)
	}

	delete(server.AllowedUsers, userID)

	if err := s.storage.SaveServer(server); err != nil {
		return InternalError("Failed to save revocation", err.Error())
	}

	s.mirrorServer(server)

	if adminID, ok := auth.GetUserID(c); ok {
		if claims, ok := auth.GetClaims(c); ok {
			s.logAuditEvent(c, adminID, claims.Username, "grant_revoked", id, true, "")
		}
	}

	return c.JSON(http.StatusOK, server)
}

// mirrorServer writes the server record into the realtime tree under the
// panel's elevated identity. The CouchDB revision never crosses into the
// store.
func (s *Server) mirrorServer(server *models.Server) {
	var doc map[string]any
	if err := models.Remarshal(server, &doc); err != nil {
		log.Printf("Warning: failed to encode server %s for store: %v", server.ID, err)
		return
	}
	delete(doc, "_rev")

	if err := s.store.Set(rtstore.Auth{Elevated: true}, "servers/"+server.ID, doc); err != nil {
		log.Printf("Warning: failed to mirror server %s into store: %v", server.ID, err)
	}
}

// revokeAllGrants removes a deleted user's grants from every server.
func (s *Server) revokeAllGrants(userID string) {
	servers, err := s.storage.ListServers(nil)
	if err != nil {
		log.Printf("Warning: failed to list servers for grant scrub: %v", err)
		return
	}

	for _, server := range servers {
		if !server.AllowedUsers[userID] {
			continue
		}
		delete(server.AllowedUsers, userID)
		if err := s.storage.SaveServer(server); err != nil {
			log.Printf("Warning: failed to scrub grant on %s: %v", server.ID, err)
			continue
		}
		s.mirrorServer(server)
	}
}

// loadServersIntoStore seeds the realtime tree from CouchDB at boot. The
// store is in-process state; CouchDB is the durable copy.
func (s *Server) loadServersIntoStore() error {
	servers, err := s.storage.ListServers(nil)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil
		}
		return err
	}

	for _, server := range servers {
		s.mirrorServer(server)
	}

	log.Printf("Loaded %d servers into the realtime store", len(servers))
	return nil
}
