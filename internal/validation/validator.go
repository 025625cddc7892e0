// Package validation provides document validation for Phoenix models.
//
// It validates server definitions and command documents before they are
// persisted or dispatched. Struct constraints are checked with
// go-playground/validator; field-level business rules (runtime kinds,
// action names, port ranges, timeouts) are checked on top of that.
//
// # Usage Example
//
//	validator := validation.New()
//	result, err := validator.ValidateServer(jsonData)
//	if err != nil {
//	    // Handle error
//	}
//	if !result.Valid {
//	    for _, err := range result.Errors {
//	        fmt.Printf("%s: %s\n", err.Field, err.Message)
//	    }
//	}
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"evalgo.org/phoenix/models"
)

// Validator validates Phoenix documents. It combines struct tag validation
// with business rules that tags cannot express.
type Validator struct {
	structValidator *validator.Validate
}

// ValidationError represents a single validation error with field-level details.
type ValidationError struct {
	// Field is the name of the field that failed validation
	Field string `json:"field"`

	// Message describes why the validation failed
	Message string `json:"message"`

	// Value is the invalid value that caused the error (optional)
	Value interface{} `json:"value,omitempty"`
}

// ValidationResult represents the complete result of a validation operation.
type ValidationResult struct {
	// Valid is true if validation passed, false otherwise
	Valid bool `json:"valid"`

	// Errors contains all validation errors found (empty if Valid is true)
	Errors []ValidationError `json:"errors,omitempty"`
}

// New creates a new Validator instance.
func New() *Validator {
	return &Validator{
		structValidator: validator.New(),
	}
}

// Struct validates a struct's `validate` tags and returns the raw
// validator error. Used by API handlers for request bodies.
func (v *Validator) Struct(s interface{}) error {
	return v.structValidator.Struct(s)
}

// ValidateServer validates a server definition document.
func (v *Validator) ValidateServer(data []byte) (*ValidationResult, error) {
	var server models.Server

	if err := json.Unmarshal(data, &server); err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{
					Field:   "document",
					Message: fmt.Sprintf("Invalid JSON: %v", err),
				},
			},
		}, nil
	}

	errs := v.validateServerFields(&server)

	return &ValidationResult{
		Valid:  len(errs) == 0,
		Errors: errs,
	}, nil
}

// ValidateCommand validates a command document.
func (v *Validator) ValidateCommand(data []byte) (*ValidationResult, error) {
	var cmd models.Command

	if err := json.Unmarshal(data, &cmd); err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{
					Field:   "document",
					Message: fmt.Sprintf("Invalid JSON: %v", err),
				},
			},
		}, nil
	}

	errs := v.validateCommandFields(&cmd)

	return &ValidationResult{
		Valid:  len(errs) == 0,
		Errors: errs,
	}, nil
}

// validateServerFields validates server-specific business rules
func (v *Validator) validateServerFields(server *models.Server) []ValidationError {
	var errors []ValidationError

	if server.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "name",
			Message: "Name is required",
		})
	}

	if server.Config == nil {
		errors = append(errors, ValidationError{
			Field:   "config",
			Message: "Launch configuration is required",
		})
		return errors
	}

	cfg := server.Config

	switch cfg.RuntimeKind() {
	case models.RuntimeProcess:
		if cfg.ExecutablePath == "" {
			errors = append(errors, ValidationError{
				Field:   "config.executablePath",
				Message: "Executable path is required for process runtime",
			})
		}
	case models.RuntimeDocker:
		if cfg.ContainerImage == "" && cfg.ContainerName == "" {
			errors = append(errors, ValidationError{
				Field:   "config.containerImage",
				Message: "Container image or container name is required for docker runtime",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "config.runtime",
			Message: "Runtime must be 'process' or 'docker'",
			Value:   cfg.Runtime,
		})
	}

	if cfg.StopTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "config.stopTimeout",
			Message: "Stop timeout cannot be negative",
			Value:   cfg.StopTimeout,
		})
	}

	for i, mapping := range cfg.Ports {
		if !validPortMapping(mapping) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("config.ports[%d]", i),
				Message: "Port mapping must be 'host:container' or 'host:container/proto' with ports between 1 and 65535",
				Value:   mapping,
			})
		}
	}

	if server.Status != nil && server.Status.State != "" && !server.Status.State.Valid() {
		errors = append(errors, ValidationError{
			Field:   "status.state",
			Message: fmt.Sprintf("Invalid state: must be one of: %s",
				strings.Join([]string{"stopped", "starting", "running", "stopping", "error"}, ", ")),
			Value: server.Status.State,
		})
	}

	return errors
}

// validateCommandFields validates command-specific business rules
func (v *Validator) validateCommandFields(cmd *models.Command) []ValidationError {
	var errors []ValidationError

	if err := v.structValidator.Struct(cmd); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, ve := range verrs {
				errors = append(errors, ValidationError{
					Field:   strings.ToLower(ve.Field()),
					Message: fmt.Sprintf("Failed validation: %s", ve.Tag()),
					Value:   ve.Value(),
				})
			}
		} else {
			errors = append(errors, ValidationError{
				Field:   "document",
				Message: err.Error(),
			})
		}
	}

	if cmd.Action != "" && !models.ValidAction(cmd.Action) {
		errors = append(errors, ValidationError{
			Field:   "action",
			Message: "Action must be 'start', 'stop', or 'restart'",
			Value:   cmd.Action,
		})
	}

	if cmd.Status != "" && !validCommandStatus(cmd.Status) {
		errors = append(errors, ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("Invalid status: must be one of: %s",
				strings.Join([]string{"pending", "processing", "completed", "failed"}, ", ")),
			Value: cmd.Status,
		})
	}

	return errors
}

// validPortMapping checks a docker-style port mapping such as
// "25565:25565" or "8080:80/tcp".
func validPortMapping(mapping string) bool {
	spec := mapping
	if idx := strings.IndexByte(spec, '/'); idx >= 0 {
		proto := strings.ToLower(spec[idx+1:])
		if proto != "tcp" && proto != "udp" && proto != "sctp" {
			return false
		}
		spec = spec[:idx]
	}

	parts := strings.Split(spec, ":")
	if len(parts) != 2 {
		return false
	}
	for _, part := range parts {
		var num int
		if _, err := fmt.Sscanf(part, "%d", &num); err != nil {
			return false
		}
		if num < 1 || num > 65535 {
			return false
		}
	}
	return true
}

func validCommandStatus(s string) bool {
	switch s {
	case models.CommandStatusPending, models.CommandStatusProcessing,
		models.CommandStatusCompleted, models.CommandStatusFailed:
		return true
	}
	return false
}
