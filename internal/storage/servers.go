package storage

import (
	"fmt"
	"strings"

	"eve.evalgo.org/db"

	"evalgo.org/phoenix/models"
)

// SaveServer saves a server definition to the database.
func (s *Storage) SaveServer(server *models.Server) error {
	if server.ID == "" {
		server.ID = models.GenerateID("server")
	}
	if !strings.HasPrefix(server.ID, ServerIDPrefix) {
		return fmt.Errorf("server ID must start with %q", ServerIDPrefix)
	}

	_, err := s.service.SaveGenericDocument(server)

	// If we get a conflict, fetch the existing document and retry with its revision
	if err != nil {
		if couchErr, ok := err.(*db.CouchDBError); ok && couchErr.IsConflict() {
			existing, getErr := s.GetServer(server.ID)
			if getErr == nil {
				server.Rev = existing.Rev
				_, err = s.service.SaveGenericDocument(server)
			}
		}
	}

	return err
}

// GetServer retrieves a server definition by ID.
func (s *Storage) GetServer(id string) (*models.Server, error) {
	var server models.Server
	err := s.service.GetGenericDocument(id, &server)
	if err != nil {
		return nil, err
	}
	return &server, nil
}

// DeleteServer deletes a server definition by ID and revision.
func (s *Storage) DeleteServer(id, rev string) error {
	s.debugLog("DEBUG: Deleting server %s (rev: %s)", id, rev)
	if err := s.service.DeleteDocument(id, rev); err != nil {
		return fmt.Errorf("failed to delete server: %w", err)
	}
	return nil
}

// ListServers retrieves all server definitions matching the given filters.
func (s *Storage) ListServers(filters map[string]interface{}) ([]*models.Server, error) {
	qb := db.NewQueryBuilder().
		Where("_id", "$regex", "^"+ServerIDPrefix)

	for field, value := range filters {
		qb = qb.And().Where(field, "$eq", value)
	}

	query := qb.Build()

	s.debugLog("DEBUG: ListServers query selector: %+v", query.Selector)

	servers, err := db.FindTyped[models.Server](s.service, query)
	if err != nil {
		return nil, err
	}

	result := make([]*models.Server, len(servers))
	for i := range servers {
		result[i] = &servers[i]
	}

	return result, nil
}

// ListServersForUser retrieves the server definitions a user holds a grant on.
func (s *Storage) ListServersForUser(uid string) ([]*models.Server, error) {
	servers, err := s.ListServers(nil)
	if err != nil {
		return nil, err
	}

	visible := make([]*models.Server, 0, len(servers))
	for _, server := range servers {
		if server.UserAllowed(uid) {
			visible = append(visible, server)
		}
	}

	return visible, nil
}

// UpdateServerStatus persists the latest agent-reported status for a server.
// Stale writes (older lastUpdated than the stored record) are discarded.
func (s *Storage) UpdateServerStatus(serverID string, status *models.ServerStatus) error {
	server, err := s.GetServer(serverID)
	if err != nil {
		return fmt.Errorf("failed to load server for status update: %w", err)
	}

	if server.Status != nil && !status.NewerThan(server.Status) {
		s.debugLog("DEBUG: Discarding stale status for %s (lastUpdated %d <= %d)",
			serverID, status.LastUpdated, server.Status.LastUpdated)
		return nil
	}

	server.Status = status
	return s.SaveServer(server)
}
