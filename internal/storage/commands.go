package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"eve.evalgo.org/db"

	"evalgo.org/phoenix/models"
)

// SaveCommand mirrors a command record into the audit history. Called on
// dispatch and again on every status transition, so the stored revision
// always reflects the latest state.
func (s *Storage) SaveCommand(cmd *models.Command) error {
	if cmd.ID == "" {
		return fmt.Errorf("command ID is required")
	}
	if !strings.HasPrefix(cmd.ID, CommandIDPrefix) {
		return fmt.Errorf("command ID must start with %q", CommandIDPrefix)
	}

	_, err := s.service.SaveGenericDocument(cmd)

	// If we get a conflict, fetch the existing document and retry with its revision
	if err != nil {
		if couchErr, ok := err.(*db.CouchDBError); ok && couchErr.IsConflict() {
			existing, getErr := s.GetCommand(cmd.ID)
			if getErr == nil {
				cmd.Rev = existing.Rev
				_, err = s.service.SaveGenericDocument(cmd)
			}
		}
	}

	return err
}

// GetCommand retrieves a command by ID.
func (s *Storage) GetCommand(id string) (*models.Command, error) {
	var cmd models.Command
	err := s.service.GetGenericDocument(id, &cmd)
	if err != nil {
		return nil, err
	}
	return &cmd, nil
}

// GetCommandsByServer retrieves the audit history for a server, newest first.
func (s *Storage) GetCommandsByServer(serverID string, limit int) ([]*models.Command, error) {
	result, err := s.service.QueryView("phoenix", "commands_by_server", db.ViewOptions{
		StartKey:    []interface{}{serverID},
		EndKey:      []interface{}{serverID, map[string]interface{}{}},
		IncludeDocs: true,
	})
	if err != nil {
		return nil, err
	}

	commands := make([]*models.Command, 0, len(result.Rows))
	for _, row := range result.Rows {
		var cmd models.Command
		if err := json.Unmarshal(row.Doc, &cmd); err != nil {
			continue // Skip invalid documents
		}
		commands = append(commands, &cmd)
	}

	sort.Slice(commands, func(i, j int) bool {
		return commands[i].RequestedAt > commands[j].RequestedAt
	})

	if limit > 0 && len(commands) > limit {
		commands = commands[:limit]
	}

	return commands, nil
}

// GetCommandsByStatus retrieves all commands with a specific status.
func (s *Storage) GetCommandsByStatus(status string) ([]*models.Command, error) {
	result, err := s.service.QueryView("phoenix", "commands_by_status", db.ViewOptions{
		Key:         status,
		IncludeDocs: true,
	})
	if err != nil {
		return nil, err
	}

	commands := make([]*models.Command, 0, len(result.Rows))
	for _, row := range result.Rows {
		var cmd models.Command
		if err := json.Unmarshal(row.Doc, &cmd); err != nil {
			continue
		}
		commands = append(commands, &cmd)
	}

	return commands, nil
}

// GetCommandsByUser retrieves the audit history for a requesting user.
func (s *Storage) GetCommandsByUser(uid string, limit int) ([]*models.Command, error) {
	result, err := s.service.QueryView("phoenix", "commands_by_user", db.ViewOptions{
		StartKey:    []interface{}{uid},
		EndKey:      []interface{}{uid, map[string]interface{}{}},
		IncludeDocs: true,
	})
	if err != nil {
		return nil, err
	}

	commands := make([]*models.Command, 0, len(result.Rows))
	for _, row := range result.Rows {
		var cmd models.Command
		if err := json.Unmarshal(row.Doc, &cmd); err != nil {
			continue
		}
		commands = append(commands, &cmd)
	}

	sort.Slice(commands, func(i, j int) bool {
		return commands[i].RequestedAt > commands[j].RequestedAt
	})

	if limit > 0 && len(commands) > limit {
		commands = commands[:limit]
	}

	return commands, nil
}

// GetCommandCountByServer returns the number of recorded commands per server.
func (s *Storage) GetCommandCountByServer() (map[string]int, error) {
	commands, err := s.ListCommands(nil)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, cmd := range commands {
		counts[cmd.ServerID]++
	}

	return counts, nil
}

// ListCommands retrieves all command records matching the given filters.
func (s *Storage) ListCommands(filters map[string]interface{}) ([]*models.Command, error) {
	qb := db.NewQueryBuilder().
		Where("_id", "$regex", "^"+CommandIDPrefix)

	for field, value := range filters {
		qb = qb.And().Where(field, "$eq", value)
	}

	query := qb.Build()

	commands, err := db.FindTyped[models.Command](s.service, query)
	if err != nil {
		return nil, err
	}

	result := make([]*models.Command, len(commands))
	for i := range commands {
		result[i] = &commands[i]
	}

	return result, nil
}

// DeleteCommand deletes a command record by ID and revision.
func (s *Storage) DeleteCommand(id, rev string) error {
	return s.service.DeleteDocument(id, rev)
}
