// Package docs provides the Swagger/OpenAPI documentation served at /docs.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header",
            "description": "JWT token with Bearer prefix, e.g. \"Bearer {token}\""
        }
    },
    "paths": {
        "/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Authentication"],
                "summary": "User login",
                "parameters": [
                    {
                        "description": "Login credentials",
                        "name": "credentials",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/api.LoginRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "Successfully logged in", "schema": {"$ref": "#/definitions/api.LoginResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/api.APIError"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/api.APIError"}}
                }
            }
        },
        "/auth/register": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Authentication"],
                "summary": "Register new user",
                "parameters": [
                    {
                        "description": "User registration data",
                        "name": "user",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/api.RegisterRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Successfully created user", "schema": {"$ref": "#/definitions/api.UserResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/api.APIError"}},
                    "409": {"description": "Username or email already exists", "schema": {"$ref": "#/definitions/api.APIError"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "parameters": [
                    {
                        "description": "Refresh token",
                        "name": "refresh",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/api.RefreshRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "Successfully refreshed token", "schema": {"$ref": "#/definitions/api.LoginResponse"}},
                    "401": {"description": "Invalid refresh token", "schema": {"$ref": "#/definitions/api.APIError"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Authentication"],
                "summary": "Logout user",
                "responses": {
                    "200": {"description": "Successfully logged out", "schema": {"$ref": "#/definitions/api.MessageResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/api.APIError"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Authentication"],
                "summary": "Get current user",
                "responses": {
                    "200": {"description": "Current user information", "schema": {"$ref": "#/definitions/api.UserResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/api.APIError"}}
                }
            }
        },
        "/users": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "List all users",
                "responses": {
                    "200": {
                        "description": "List of users",
                        "schema": {"type": "array", "items": {"$ref": "#/definitions/api.UserResponse"}}
                    },
                    "403": {"description": "Forbidden - Admin access required", "schema": {"$ref": "#/definitions/api.APIError"}}
                }
            }
        },
        "/users/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Get user by ID",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "User information", "schema": {"$ref": "#/definitions/api.UserResponse"}},
                    "404": {"description": "User not found", "schema": {"$ref": "#/definitions/api.APIError"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Update user",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "id", "in": "path", "required": true},
                    {
                        "description": "User update data",
                        "name": "user",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/api.UpdateUserRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "Updated user", "schema": {"$ref": "#/definitions/api.UserResponse"}},
                    "404": {"description": "User not found", "schema": {"$ref": "#/definitions/api.APIError"}},
                    "409": {"description": "Conflict - Email already in use", "schema": {"$ref": "#/definitions/api.APIError"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Delete user",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Successfully deleted", "schema": {"$ref": "#/definitions/api.MessageResponse"}},
                    "404": {"description": "User not found", "schema": {"$ref": "#/definitions/api.APIError"}}
                }
            }
        },
        "/users/password": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Change password",
                "parameters": [
                    {
                        "description": "Password change data",
                        "name": "password",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/api.ChangePasswordRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "Password changed successfully", "schema": {"$ref": "#/definitions/api.MessageResponse"}},
                    "401": {"description": "Unauthorized - Current password incorrect", "schema": {"$ref": "#/definitions/api.APIError"}}
                }
            }
        },
        "/servers": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Servers"],
                "summary": "List servers",
                "responses": {
                    "200": {"description": "List of servers", "schema": {"$ref": "#/definitions/api.ServersResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Servers"],
                "summary": "Create server",
                "parameters": [
                    {
                        "description": "Server record",
                        "name": "server",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/models.Server"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created server", "schema": {"$ref": "#/definitions/models.Server"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/api.APIError"}},
                    "409": {"description": "Server already exists", "schema": {"$ref": "#/definitions/api.APIError"}}
                }
            }
        },
        "/servers/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Servers"],
                "summary": "Get server",
                "parameters": [
                    {"type": "string", "description": "Server ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Server record", "schema": {"$ref": "#/definitions/models.Server"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/api.APIError"}},
                    "404": {"description": "Server not found", "schema": {"$ref": "#/definitions/api.APIError"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Servers"],
                "summary": "Update server",
                "parameters": [
                    {"type": "string", "description": "Server ID", "name": "id", "in": "path", "required": true},
                    {
                        "description": "Server record",
                        "name": "server",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/models.Server"}
                    }
                ],
                "responses": {
                    "200": {"description": "Updated server", "schema": {"$ref": "#/definitions/models.Server"}},
                    "404": {"description": "Server not found", "schema": {"$ref": "#/definitions/api.APIError"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Servers"],
                "summary": "Delete server",
                "parameters": [
                    {"type": "string", "description": "Server ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Successfully deleted", "schema": {"$ref": "#/definitions/api.MessageResponse"}},
                    "404": {"description": "Server not found", "schema": {"$ref": "#/definitions/api.APIError"}}
                }
            }
        },
        "/servers/{id}/grants": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Servers"],
                "summary": "Grant server access",
                "parameters": [
                    {"type": "string", "description": "Server ID", "name": "id", "in": "path", "required": true},
                    {
                        "description": "User to grant",
                        "name": "grant",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/api.GrantRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "Updated server", "schema": {"$ref": "#/definitions/models.Server"}},
                    "404": {"description": "Server not found", "schema": {"$ref": "#/definitions/api.APIError"}}
                }
            }
        },
        "/servers/{id}/grants/{userId}": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Servers"],
                "summary": "Revoke server access",
                "parameters": [
                    {"type": "string", "description": "Server ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "User ID", "name": "userId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Updated server", "schema": {"$ref": "#/definitions/models.Server"}},
                    "404": {"description": "Server not found", "schema": {"$ref": "#/definitions/api.APIError"}}
                }
            }
        },
        "/servers/{id}/jsonld": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/ld+json"],
                "tags": ["Export"],
                "summary": "Export one server as JSON-LD",
                "parameters": [
                    {"type": "string", "description": "Server ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "JSON-LD document", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Server not found", "schema": {"$ref": "#/definitions/api.APIError"}}
                }
            }
        },
        "/servers/{id}/commands": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Commands"],
                "summary": "Server command history",
                "parameters": [
                    {"type": "string", "description": "Server ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Maximum number of commands (default 100)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Command history", "schema": {"$ref": "#/definitions/api.PaginatedCommandsResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/api.APIError"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Commands"],
                "summary": "Submit command",
                "parameters": [
                    {"type": "string", "description": "Server ID", "name": "id", "in": "path", "required": true},
                    {
                        "description": "Command to submit",
                        "name": "command",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/api.CommandRequest"}
                    }
                ],
                "responses": {
                    "202": {"description": "Accepted command", "schema": {"$ref": "#/definitions/models.Command"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/api.APIError"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/api.APIError"}}
                }
            }
        },
        "/commands": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Commands"],
                "summary": "List commands",
                "parameters": [
                    {"type": "string", "description": "Filter by status (pending/processing/completed/failed)", "name": "status", "in": "query"},
                    {"type": "string", "description": "Filter by requesting user ID", "name": "user", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Commands", "schema": {"$ref": "#/definitions/api.PaginatedCommandsResponse"}}
                }
            }
        },
        "/commands/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Commands"],
                "summary": "Get command",
                "parameters": [
                    {"type": "string", "description": "Command ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Command record", "schema": {"$ref": "#/definitions/models.Command"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/api.APIError"}},
                    "404": {"description": "Command not found", "schema": {"$ref": "#/definitions/api.APIError"}}
                }
            }
        },
        "/agent/status": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Agent"],
                "summary": "Agent status",
                "responses": {
                    "200": {"description": "Agent presence", "schema": {"$ref": "#/definitions/api.AgentStatusResponse"}}
                }
            }
        },
        "/stats": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Stats"],
                "summary": "Panel statistics",
                "responses": {
                    "200": {"description": "Statistics", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/stats/commands": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Stats"],
                "summary": "Command counts per server",
                "responses": {
                    "200": {
                        "description": "Command counts keyed by server ID",
                        "schema": {"type": "object", "additionalProperties": {"type": "integer"}}
                    }
                }
            }
        },
        "/export/jsonld": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/ld+json"],
                "tags": ["Export"],
                "summary": "Export servers as JSON-LD",
                "responses": {
                    "200": {"description": "JSON-LD graph", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/info": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Stats"],
                "summary": "Database info",
                "responses": {
                    "200": {"description": "Database information", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "api.APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "details": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "api.AgentStatusResponse": {
            "type": "object",
            "properties": {
                "hostname": {"type": "string"},
                "lastHeartbeat": {"type": "integer"},
                "online": {"type": "boolean"},
                "stale": {"type": "boolean"},
                "version": {"type": "string"}
            }
        },
        "api.ChangePasswordRequest": {
            "type": "object",
            "required": ["current_password", "new_password"],
            "properties": {
                "current_password": {"type": "string"},
                "new_password": {"type": "string", "minLength": 8}
            }
        },
        "api.CommandRequest": {
            "type": "object",
            "required": ["action"],
            "properties": {
                "action": {"type": "string", "enum": ["start", "stop", "restart"]}
            }
        },
        "api.GrantRequest": {
            "type": "object",
            "required": ["userId"],
            "properties": {
                "userId": {"type": "string"}
            }
        },
        "api.LoginRequest": {
            "type": "object",
            "required": ["username", "password"],
            "properties": {
                "password": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "api.LoginResponse": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"},
                "expires_at": {"type": "string"},
                "refresh_token": {"type": "string"},
                "token_type": {"type": "string"},
                "user": {"$ref": "#/definitions/api.UserResponse"}
            }
        },
        "api.MessageResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"}
            }
        },
        "api.PaginatedCommandsResponse": {
            "type": "object",
            "properties": {
                "commands": {"type": "array", "items": {"$ref": "#/definitions/models.Command"}},
                "count": {"type": "integer"},
                "limit": {"type": "integer"},
                "offset": {"type": "integer"},
                "total": {"type": "integer"}
            }
        },
        "api.RefreshRequest": {
            "type": "object",
            "required": ["user_id", "refresh_token"],
            "properties": {
                "refresh_token": {"type": "string"},
                "user_id": {"type": "string"}
            }
        },
        "api.RegisterRequest": {
            "type": "object",
            "required": ["username", "password", "email"],
            "properties": {
                "email": {"type": "string"},
                "name": {"type": "string"},
                "password": {"type": "string", "minLength": 8},
                "roles": {"type": "array", "items": {"type": "string"}},
                "username": {"type": "string", "minLength": 3, "maxLength": 50}
            }
        },
        "api.ServersResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "servers": {"type": "array", "items": {"$ref": "#/definitions/models.Server"}}
            }
        },
        "api.UpdateUserRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "enabled": {"type": "boolean"},
                "name": {"type": "string"},
                "roles": {"type": "array", "items": {"type": "string"}}
            }
        },
        "api.UserResponse": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string"},
                "email": {"type": "string"},
                "enabled": {"type": "boolean"},
                "id": {"type": "string"},
                "last_login_at": {"type": "string"},
                "name": {"type": "string"},
                "roles": {"type": "array", "items": {"type": "string"}},
                "updated_at": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "models.Command": {
            "type": "object",
            "properties": {
                "action": {"type": "string", "enum": ["start", "stop", "restart"]},
                "error": {"type": "string"},
                "id": {"type": "string"},
                "processedAt": {"type": "integer"},
                "requestedAt": {"type": "integer"},
                "requestedBy": {"type": "string"},
                "result": {"type": "string"},
                "serverId": {"type": "string"},
                "status": {"type": "string", "enum": ["pending", "processing", "completed", "failed"]}
            }
        },
        "models.Server": {
            "type": "object",
            "properties": {
                "allowedUsers": {"type": "object", "additionalProperties": {"type": "boolean"}},
                "createdAt": {"type": "integer"},
                "description": {"type": "string"},
                "id": {"type": "string"},
                "name": {"type": "string"},
                "status": {"$ref": "#/definitions/models.ServerStatus"},
                "type": {"type": "string"}
            }
        },
        "models.ServerStatus": {
            "type": "object",
            "properties": {
                "lastUpdated": {"type": "integer"},
                "message": {"type": "string"},
                "pid": {"type": "integer"},
                "state": {"type": "string", "enum": ["stopped", "starting", "running", "stopping", "error"]}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Phoenix Control Panel API",
	Description:      "REST API for the Phoenix game server control panel: authentication, server provisioning, command dispatch and agent presence.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
