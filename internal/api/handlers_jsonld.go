package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/piprate/json-gold/ld"

	"evalgo.org/phoenix/models"
)

// serverContext is the JSON-LD context for exported server documents.
var serverContext = map[string]interface{}{
	"@vocab":       "https://schema.org/",
	"allowedUsers": "https://phoenix.evalgo.org/ns#allowedUsers",
	"status":       "https://phoenix.evalgo.org/ns#status",
	"gameType":     "https://phoenix.evalgo.org/ns#gameType",
}

// exportServers handles GET /api/v1/export/jsonld
// @Summary Export servers as JSON-LD
// @Description Export all servers as a JSON-LD graph (admin only). Documents
// @Description are expanded through the JSON-LD processor before export so
// @Description malformed records fail loudly instead of producing bad output.
// @Tags Export
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "JSON-LD graph"
// @Failure 403 {object} APIError "Forbidden - Admin access required"
// @Failure 500 {object} APIError "Internal server error"
// @Router /export/jsonld [get]
func (s *Server) exportServers(c echo.Context) error {
	servers, err := s.storage.ListServers(nil)
	if err != nil {
		return InternalError("Failed to list servers", err.Error())
	}

	graph := make([]interface{}, 0, len(servers))
	for _, server := range servers {
		graph = append(graph, serverToJSONLD(server))
	}

	doc := map[string]interface{}{
		"@context": serverContext,
		"@graph":   graph,
	}

	// Expansion validates the document is well-formed JSON-LD.
	proc := ld.NewJsonLdProcessor()
	if _, err := proc.Expand(doc, ld.NewJsonLdOptions("")); err != nil {
		return InternalError("JSON-LD expansion failed", err.Error())
	}

	return c.JSON(http.StatusOK, doc)
}

// exportServer handles GET /api/v1/servers/:id/jsonld
// @Summary Export one server as JSON-LD
// @Description Export a single server record as a compacted JSON-LD document
// @Tags Export
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Server ID"
// @Success 200 {object} map[string]interface{} "JSON-LD document"
// @Failure 404 {object} APIError "Server not found"
// @Router /servers/{id}/jsonld [get]
func (s *Server) exportServer(c echo.Context) error {
	id := c.Param("id")

	server, err := s.storage.GetServer(id)
	if err != nil {
		return NotFoundError("server", id)
	}

	doc := serverToJSONLD(server)
	doc["@context"] = serverContext

	proc := ld.NewJsonLdProcessor()
	options := ld.NewJsonLdOptions("")

	expanded, err := proc.Expand(doc, options)
	if err != nil {
		return InternalError("JSON-LD expansion failed", err.Error())
	}

	compacted, err := proc.Compact(expanded, map[string]interface{}{"@context": serverContext}, options)
	if err != nil {
		return InternalError("JSON-LD compaction failed", err.Error())
	}

	return c.JSON(http.StatusOK, compacted)
}

// serverToJSONLD maps a server record onto schema.org terms.
func serverToJSONLD(server *models.Server) map[string]interface{} {
	doc := map[string]interface{}{
		"@id":   fmt.Sprintf("https://phoenix.evalgo.org/servers/%s", server.ID),
		"@type": "SoftwareApplication",
		"name":  server.Name,
	}
	if server.Description != "" {
		doc["description"] = server.Description
	}
	if server.GameType != "" {
		doc["gameType"] = server.GameType
	}
	if server.Status != nil {
		doc["status"] = map[string]interface{}{
			"state":       string(server.Status.State),
			"lastUpdated": server.Status.LastUpdated,
		}
	}
	if len(server.AllowedUsers) > 0 {
		users := make([]interface{}, 0, len(server.AllowedUsers))
		for uid, granted := range server.AllowedUsers {
			if granted {
				users = append(users, uid)
			}
		}
		doc["allowedUsers"] = users
	}
	return doc
}
