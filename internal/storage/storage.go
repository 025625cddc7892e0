// Package storage provides the storage layer for Phoenix using CouchDB.
// This package wraps the eve.evalgo.org/db library to provide Phoenix-specific
// functionality for server definitions, command audit history, and users.
//
// CouchDB holds the durable record: server definitions survive panel
// restarts, and every dispatched command is mirrored here for audit. The
// realtime store is rebuilt from this layer on startup.
package storage

import (
	"fmt"
	"log"
	"reflect"

	"eve.evalgo.org/db"

	"evalgo.org/phoenix/internal/config"
)

// Document ID prefixes. Documents are discriminated by their _id prefix
// rather than a type field.
const (
	ServerIDPrefix  = "server:"
	CommandIDPrefix = "cmd:"
)

// Storage provides the main storage interface for Phoenix.
// It wraps the CouchDB service from the eve library and provides
// type-safe operations for Phoenix entities.
type Storage struct {
	service *db.CouchDBService
	config  *config.Config
}

// debugLog logs a message only if debug mode is enabled in config
func (s *Storage) debugLog(format string, args ...interface{}) {
	if s.config.Server.Debug {
		log.Printf(format, args...)
	}
}

// New creates a new Storage instance from the application configuration.
// It initializes the CouchDB connection and ensures the database exists.
func New(cfg *config.Config) (*Storage, error) {
	couchConfig := db.CouchDBConfig{
		URL:             cfg.CouchDB.URL,
		Database:        cfg.CouchDB.Database,
		Username:        cfg.CouchDB.Username,
		Password:        cfg.CouchDB.Password,
		CreateIfMissing: true,
	}

	service, err := db.NewCouchDBServiceFromConfig(couchConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create CouchDB service: %w", err)
	}

	storage := &Storage{
		service: service,
		config:  cfg,
	}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return storage, nil
}

// initializeSchema creates indexes and views needed for Phoenix queries.
func (s *Storage) initializeSchema() error {
	indexes := []db.Index{
		{
			Name:   "commands-server-status",
			Fields: []string{"serverId", "status"},
			Type:   "json",
		},
		{
			Name:   "commands-requested-by",
			Fields: []string{"requestedBy", "requestedAt"},
			Type:   "json",
		},
		{
			Name:   "servers-name",
			Fields: []string{"name"},
			Type:   "json",
		},
	}

	for _, index := range indexes {
		if err := s.service.CreateIndex(index); err != nil {
			// Log warning but don't fail - index might already exist
			fmt.Printf("Warning: failed to create index %s: %v\n", index.Name, err)
		}
	}

	if err := s.createViews(); err != nil {
		return fmt.Errorf("failed to create views: %w", err)
	}

	return nil
}

// createViews creates CouchDB MapReduce views for audit and status queries.
func (s *Storage) createViews() error {
	designDoc := db.DesignDoc{
		ID:       "_design/phoenix",
		Language: "javascript",
		Views: map[string]db.View{
			// View: commands_by_server - Audit history for a specific server
			"commands_by_server": {
				Map: `function(doc) {
					if (doc._id.indexOf('cmd:') === 0 && doc.serverId) {
						emit([doc.serverId, doc.requestedAt], doc);
					}
				}`,
			},
			// View: commands_by_status - Find commands by status
			"commands_by_status": {
				Map: `function(doc) {
					if (doc._id.indexOf('cmd:') === 0 && doc.status) {
						emit(doc.status, doc);
					}
				}`,
			},
			// View: commands_by_user - Audit history per requesting user
			"commands_by_user": {
				Map: `function(doc) {
					if (doc._id.indexOf('cmd:') === 0 && doc.requestedBy) {
						emit([doc.requestedBy, doc.requestedAt], doc);
					}
				}`,
			},
			// View: command_count_by_server - Count commands per server
			"command_count_by_server": {
				Map: `function(doc) {
					if (doc._id.indexOf('cmd:') === 0 && doc.serverId) {
						emit(doc.serverId, 1);
					}
				}`,
				Reduce: "_sum",
			},
		},
	}

	return s.service.CreateDesignDoc(designDoc)
}

// Close closes the storage connection.
func (s *Storage) Close() error {
	return s.service.Close()
}

// GetDBService returns the underlying CouchDB service.
func (s *Storage) GetDBService() *db.CouchDBService {
	return s.service
}

// GetDatabaseInfo returns database statistics.
func (s *Storage) GetDatabaseInfo() (*db.DatabaseInfo, error) {
	return s.service.GetDatabaseInfo()
}

// IsNotFound reports whether err is a CouchDB 404.
func IsNotFound(err error) bool {
	couchErr, ok := err.(*db.CouchDBError)
	return ok && couchErr.IsNotFound()
}

// SaveDocument saves a generic document to CouchDB.
// It updates the document's _rev field after a successful save.
func (s *Storage) SaveDocument(doc interface{}) error {
	resp, err := s.service.SaveGenericDocument(doc)
	if err != nil {
		return err
	}

	// Update the document's _rev field with the new revision
	// This is critical for subsequent saves to work without conflicts
	if resp != nil && resp.Rev != "" {
		docValue := reflect.ValueOf(doc)
		if docValue.Kind() == reflect.Ptr {
			docValue = docValue.Elem()
		}

		if docValue.Kind() == reflect.Struct {
			revField := docValue.FieldByName("Rev")
			if revField.IsValid() && revField.CanSet() && revField.Kind() == reflect.String {
				revField.SetString(resp.Rev)
			}
		}
	}

	return nil
}

// GetDocument retrieves a generic document by ID.
func (s *Storage) GetDocument(id string, result interface{}) error {
	return s.service.GetGenericDocument(id, result)
}
