package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"evalgo.org/phoenix/internal/rtstore"
	"evalgo.org/phoenix/models"
)

// AgentStatusResponse is the panel's view of the agent presence record.
type AgentStatusResponse struct {
	Online        bool   `json:"online"`
	Stale         bool   `json:"stale"`
	LastHeartbeat int64  `json:"lastHeartbeat,omitempty"`
	Hostname      string `json:"hostname,omitempty"`
	Version       string `json:"version,omitempty"`
}

// getAgentStatus handles GET /api/v1/agent/status
// @Summary Agent status
// @Description Get the agent's presence record. The stale flag is computed
// @Description from heartbeat age: a heartbeat older than the staleness window
// @Description marks the agent offline regardless of its own online claim.
// @Tags Agent
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} AgentStatusResponse "Agent presence"
// @Router /agent/status [get]
func (s *Server) getAgentStatus(c echo.Context) error {
	raw, err := s.store.Get(rtstore.Auth{Elevated: true}, "agent/status")
	if err != nil || raw == nil {
		return c.JSON(http.StatusOK, AgentStatusResponse{Online: false, Stale: true})
	}

	var presence models.Presence
	if err := models.Remarshal(raw, &presence); err != nil {
		return InternalError("Malformed presence record", err.Error())
	}

	stale := presence.IsStale(time.Now())

	return c.JSON(http.StatusOK, AgentStatusResponse{
		Online:        presence.EffectiveOnline(time.Now()),
		Stale:         stale,
		LastHeartbeat: presence.LastHeartbeat,
		Hostname:      presence.Hostname,
		Version:       presence.Version,
	})
}
