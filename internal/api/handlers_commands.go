package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"evalgo.org/phoenix/internal/auth"
	"evalgo.org/phoenix/internal/dispatch"
	"evalgo.org/phoenix/models"
)

// submitCommand handles POST /api/v1/servers/:id/commands
// @Summary Submit command
// @Description Submit a start/stop/restart command for a server. The command
// @Description is accepted into the queue; the agent reports the outcome
// @Description asynchronously on the command record.
// @Tags Commands
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server ID"
// @Param command body CommandRequest true "Command to submit"
// @Success 202 {object} models.Command "Accepted command"
// @Failure 400 {object} APIError "Bad request - Invalid action"
// @Failure 401 {object} APIError "Unauthorized"
// @Failure 404 {object} APIError "Server not found"
// @Router /servers/{id}/commands [post]
func (s *Server) submitCommand(c echo.Context) error {
	serverID := c.Param("id")

	var req CommandRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	sa := auth.GetStoreAuth(c)

	cmd, err := s.dispatcher.Submit(sa, serverID, req.Action)
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrInvalidAction):
			return BadRequestError("Invalid action", req.Action)
		case errors.Is(err, dispatch.ErrNotAuthorized), errors.Is(err, dispatch.ErrUnknownServer):
			// Denied and unknown are the same response on purpose.
			return NotFoundError("server", serverID)
		default:
			return InternalError("Failed to submit command", err.Error())
		}
	}

	if claims, ok := auth.GetClaims(c); ok {
		s.logAuditEvent(c, claims.UserID, claims.Username, "command_submitted", serverID, true, "")
	}

	return c.JSON(http.StatusAccepted, cmd)
}

// getServerCommands handles GET /api/v1/servers/:id/commands
// @Summary Server command history
// @Description Get the command history for a server, newest first
// @Tags Commands
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server ID"
// @Param limit query int false "Maximum number of commands (default 100)"
// @Success 200 {object} PaginatedCommandsResponse "Command history"
// @Failure 401 {object} APIError "Unauthorized"
// @Failure 404 {object} APIError "Server not found"
// @Router /servers/{id}/commands [get]
func (s *Server) getServerCommands(c echo.Context) error {
	serverID := c.Param("id")

	claims, ok := auth.GetClaims(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	server, err := s.storage.GetServer(serverID)
	if err != nil {
		return NotFoundError("server", serverID)
	}
	if !claims.HasRole(models.RoleAdmin) && !server.UserAllowed(claims.UserID) {
		return NotFoundError("server", serverID)
	}

	limit, offset := parsePagination(c)

	commands, err := s.storage.GetCommandsByServer(serverID, limit+offset)
	if err != nil {
		return InternalError("Failed to get command history", err.Error())
	}

	total := len(commands)
	commands = paginateCommands(commands, limit, offset)

	return c.JSON(http.StatusOK, PaginatedCommandsResponse{
		Count:    len(commands),
		Total:    total,
		Limit:    limit,
		Offset:   offset,
		Commands: commands,
	})
}

// listCommands handles GET /api/v1/commands
// @Summary List commands
// @Description List commands across all servers (admin only), filterable by
// @Description status or requesting user
// @Tags Commands
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status (pending/processing/completed/failed)"
// @Param user query string false "Filter by requesting user ID"
// @Success 200 {object} PaginatedCommandsResponse "Commands"
// @Failure 401 {object} APIError "Unauthorized"
// @Failure 403 {object} APIError "Forbidden - Admin access required"
// @Router /commands [get]
func (s *Server) listCommands(c echo.Context) error {
	limit, offset := parsePagination(c)

	var (
		commands []*models.Command
		err      error
	)
	switch {
	case c.QueryParam("status") != "":
		commands, err = s.storage.GetCommandsByStatus(c.QueryParam("status"))
	case c.QueryParam("user") != "":
		commands, err = s.storage.GetCommandsByUser(c.QueryParam("user"), limit+offset)
	default:
		commands, err = s.storage.ListCommands(nil)
	}
	if err != nil {
		return InternalError("Failed to list commands", err.Error())
	}

	total := len(commands)
	commands = paginateCommands(commands, limit, offset)

	return c.JSON(http.StatusOK, PaginatedCommandsResponse{
		Count:    len(commands),
		Total:    total,
		Limit:    limit,
		Offset:   offset,
		Commands: commands,
	})
}

// getCommand handles GET /api/v1/commands/:id
// @Summary Get command
// @Description Get a command by ID. Visible to its requester, users granted on
// @Description the target server, and admins.
// @Tags Commands
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Command ID"
// @Success 200 {object} models.Command "Command record"
// @Failure 401 {object} APIError "Unauthorized"
// @Failure 404 {object} APIError "Command not found"
// @Router /commands/{id} [get]
func (s *Server) getCommand(c echo.Context) error {
	id := c.Param("id")

	claims, ok := auth.GetClaims(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	cmd, err := s.storage.GetCommand(id)
	if err != nil {
		return NotFoundError("command", id)
	}

	if !claims.HasRole(models.RoleAdmin) && cmd.RequestedBy != claims.UserID {
		server, err := s.storage.GetServer(cmd.ServerID)
		if err != nil || !server.UserAllowed(claims.UserID) {
			return NotFoundError("command", id)
		}
	}

	return c.JSON(http.StatusOK, cmd)
}
