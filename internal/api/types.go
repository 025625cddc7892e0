package api

import (
	"evalgo.org/phoenix/models"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// MessageResponse represents a simple message response.
type MessageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// ServersResponse represents a list of servers.
type ServersResponse struct {
	Count   int              `json:"count"`
	Servers []*models.Server `json:"servers"`
}

// PaginatedCommandsResponse represents a paginated command history.
type PaginatedCommandsResponse struct {
	Count    int               `json:"count"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
	Commands []*models.Command `json:"commands"`
}

// GrantRequest adds or removes a user grant on a server.
type GrantRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// CommandRequest submits a control command for a server.
type CommandRequest struct {
	Action string `json:"action" validate:"required,oneof=start stop restart"`
}
