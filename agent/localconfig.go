package agent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"evalgo.org/phoenix/models"
)

// LocalConfig is the agent's local launch configuration file. The panel never
// supplies executable paths or arguments; only this file, owned by the host
// operator, decides what a server ID actually launches. A command for a
// server absent from this file fails validation.
type LocalConfig struct {
	// Hostname overrides the reported hostname in presence records
	Hostname string `yaml:"hostname"`

	// Servers maps server IDs to their launch configuration
	Servers map[string]*models.ServerConfig `yaml:"servers"`
}

// LoadLocalConfig reads and validates the agent's launch configuration.
func LoadLocalConfig(path string) (*LocalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent config %s: %w", path, err)
	}

	var cfg LocalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse agent config %s: %w", path, err)
	}

	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("agent config %s defines no servers", path)
	}

	for id, sc := range cfg.Servers {
		if sc == nil {
			return nil, fmt.Errorf("server %s has no launch configuration", id)
		}
		switch sc.RuntimeKind() {
		case models.RuntimeProcess:
			if sc.ExecutablePath == "" {
				return nil, fmt.Errorf("server %s: executablePath is required for process runtime", id)
			}
		case models.RuntimeDocker:
			if sc.ContainerImage == "" && sc.ContainerName == "" {
				return nil, fmt.Errorf("server %s: containerImage or containerName is required for docker runtime", id)
			}
		default:
			return nil, fmt.Errorf("server %s: unknown runtime %q", id, sc.Runtime)
		}
	}

	return &cfg, nil
}

// ServerConfigFor returns the launch configuration for a server ID.
func (c *LocalConfig) ServerConfigFor(serverID string) (*models.ServerConfig, bool) {
	sc, ok := c.Servers[serverID]
	return sc, ok
}

// ServerIDs returns the configured server IDs.
func (c *LocalConfig) ServerIDs() []string {
	ids := make([]string, 0, len(c.Servers))
	for id := range c.Servers {
		ids = append(ids, id)
	}
	return ids
}
