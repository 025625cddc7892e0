// Package phoenix is a control panel for self-hosted game servers.
//
// # Overview
//
// Phoenix lets a web panel start, stop and restart game servers running on
// private hardware without exposing that hardware to inbound connections.
// The panel server hosts a realtime, path-addressed state store; a
// privileged agent on the game host connects outward to the store, watches
// for command records, and supervises the server processes.
//
// The platform consists of three main components:
//   - Panel Server: REST API, realtime store and websocket sync endpoint
//   - Local Agent: command execution and process supervision on the game host
//   - Storage Layer: CouchDB-backed durable records (users, servers, audit)
//
// # Architecture
//
//	┌─────────────────┐
//	│   Web Panel     │
//	│  (browser)      │
//	└────────┬────────┘
//	         │ REST + /ws/sync
//	┌────────▼────────┐       ┌─────────────────┐
//	│  Panel Server   │◄──────┤  Local Agent    │
//	│  (Echo, store)  │  ws   │  (supervisor)   │
//	└────────┬────────┘       └─────────────────┘
//	         │
//	┌────────▼────────┐
//	│  Storage Layer  │
//	│  (EVE/CouchDB)  │
//	└─────────────────┘
//
// # Command Flow
//
// A user presses Start in the panel. The panel server validates the grant
// and appends a pending command record at commands/{id}. The agent's store
// subscription delivers the record; the agent validates freshness and rate
// limits, claims the command (pending -> processing), launches the process
// and writes the terminal status plus the server's status record. The panel
// observes both through its own subscriptions.
//
// Commands are append-only for ordinary users: a command can never be
// edited or re-pointed after submission, and only the agent's elevated
// credential may write outcome fields.
//
// # Usage
//
// Start the panel server:
//
//	phoenix server --config config.yaml
//
// Run the agent on the game host:
//
//	phoenix agent --config config.yaml --servers-config servers.yaml
//
// Mint an elevated agent token:
//
//	phoenix token agent basement-rack
//
// # Configuration
//
// Configuration can be provided via:
//   - YAML file (config.yaml)
//   - Environment variables (PX_ prefix)
//   - .env file
//
// Example configuration:
//
//	server:
//	  host: 0.0.0.0
//	  port: 8090
//	couchdb:
//	  url: http://localhost:5984
//	  database: phoenix
//	  username: admin
//	  password: password
//	agent:
//	  enabled: true
//	  sync_url: ws://panel:8090/ws/sync
//	  config_path: servers.yaml
//
// # API Endpoints
//
// Authentication:
//   - POST /api/v1/auth/login     - Login with username/password
//   - POST /api/v1/auth/refresh   - Rotate a refresh token
//   - POST /api/v1/auth/logout    - Revoke refresh tokens
//   - GET  /api/v1/auth/me        - Current user
//
// Server Management:
//   - GET    /api/v1/servers                      - List servers (grant-filtered)
//   - GET    /api/v1/servers/:id                  - Get server by ID
//   - POST   /api/v1/servers                      - Create server (admin)
//   - PUT    /api/v1/servers/:id                  - Update server (admin)
//   - DELETE /api/v1/servers/:id                  - Delete server (admin)
//   - POST   /api/v1/servers/:id/grants           - Grant access (admin)
//   - DELETE /api/v1/servers/:id/grants/:userId   - Revoke access (admin)
//
// Commands:
//   - POST /api/v1/servers/:id/commands  - Submit start/stop/restart
//   - GET  /api/v1/servers/:id/commands  - Command history for a server
//   - GET  /api/v1/commands              - List commands
//   - GET  /api/v1/commands/:id          - Get one command
//
// Agent:
//   - GET /api/v1/agent/status  - Agent presence (staleness-masked)
//   - GET /ws/sync              - Realtime store sync (websocket)
//
// # Development
//
// Run tests:
//
//	go test ./...
//
// Build the binary:
//
//	go build -o phoenix ./cmd/phoenix
//
// # Technology Stack
//
//   - Go 1.25+
//   - Echo v4 (Web framework)
//   - CouchDB 3.3+ (Database)
//   - EVE library (CouchDB client, identity records)
//   - gorilla/websocket (store sync transport)
//   - Docker API (container-runtime servers)
//
// # License
//
// Phoenix is open source software.
package phoenix
