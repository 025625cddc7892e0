package api

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"evalgo.org/phoenix/models"
)

// parsePagination parses limit and offset from query parameters.
// Default limit is 100, default offset is 0.
// Maximum limit is 1000 to prevent excessive memory usage.
func parsePagination(c echo.Context) (limit, offset int) {
	limit = 100
	if limitParam := c.QueryParam("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
			// Cap at 1000
			if limit > 1000 {
				limit = 1000
			}
		}
	}

	offset = 0
	if offsetParam := c.QueryParam("offset"); offsetParam != "" {
		if parsed, err := strconv.Atoi(offsetParam); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return limit, offset
}

// paginateCommands applies pagination to a slice of commands.
func paginateCommands(commands []*models.Command, limit, offset int) []*models.Command {
	if offset >= len(commands) {
		return []*models.Command{}
	}

	end := offset + limit
	if end > len(commands) {
		end = len(commands)
	}

	return commands[offset:end]
}
