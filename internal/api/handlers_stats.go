package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"evalgo.org/phoenix/models"
)

// getStatistics handles GET /api/v1/stats
// @Summary Panel statistics
// @Description Aggregate counts over servers and commands (admin only)
// @Tags Stats
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "Statistics"
// @Failure 403 {object} APIError "Forbidden - Admin access required"
// @Router /stats [get]
func (s *Server) getStatistics(c echo.Context) error {
	servers, err := s.storage.ListServers(nil)
	if err != nil {
		return InternalError("Failed to list servers", err.Error())
	}

	running := 0
	for _, server := range servers {
		if server.Status != nil && server.Status.State == models.StateRunning {
			running++
		}
	}

	commandCounts, err := s.storage.GetCommandCountByServer()
	if err != nil {
		return InternalError("Failed to count commands", err.Error())
	}

	totalCommands := 0
	for _, n := range commandCounts {
		totalCommands += n
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"totalServers":      len(servers),
		"runningServers":    running,
		"totalCommands":     totalCommands,
		"commandsPerServer": commandCounts,
	})
}

// getCommandCounts handles GET /api/v1/stats/commands
// @Summary Command counts per server
// @Description Per-server command totals from the CouchDB reduce view
// @Tags Stats
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]int "Command counts keyed by server ID"
// @Failure 403 {object} APIError "Forbidden - Admin access required"
// @Router /stats/commands [get]
func (s *Server) getCommandCounts(c echo.Context) error {
	counts, err := s.storage.GetCommandCountByServer()
	if err != nil {
		return InternalError("Failed to count commands", err.Error())
	}

	return c.JSON(http.StatusOK, counts)
}

// getDatabaseInfo handles GET /api/v1/info
// @Summary Database info
// @Description CouchDB database statistics (admin only)
// @Tags Stats
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "Database information"
// @Router /info [get]
func (s *Server) getDatabaseInfo(c echo.Context) error {
	info, err := s.storage.GetDatabaseInfo()
	if err != nil {
		return InternalError("Failed to get database info", err.Error())
	}

	return c.JSON(http.StatusOK, info)
}
