package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"evalgo.org/phoenix/agent"
	"evalgo.org/phoenix/internal/auth"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Start the local agent",
	Long: `Start the privileged agent that watches the panel's realtime store
for commands and supervises the configured game server processes.

Only servers listed in the agent's local configuration file are
executable on this host, regardless of what the store contains.`,
	RunE: runAgent,
}

func init() {
	agentCmd.Flags().String("sync-url", "", "panel store sync endpoint (ws://host:port/ws/sync)")
	agentCmd.Flags().String("servers-config", "", "local server configuration file")
	agentCmd.Flags().String("docker-socket", "", "Docker socket path")
	agentCmd.Flags().Int("http-port", 0, "agent-local HTTP port (0 = disabled)")

	// These should never fail as flags are defined above
	_ = viper.BindPFlag("agent.sync_url", agentCmd.Flags().Lookup("sync-url"))           //nolint:errcheck
	_ = viper.BindPFlag("agent.config_path", agentCmd.Flags().Lookup("servers-config"))  //nolint:errcheck
	_ = viper.BindPFlag("agent.docker_socket", agentCmd.Flags().Lookup("docker-socket")) //nolint:errcheck
	_ = viper.BindPFlag("agent.http_port", agentCmd.Flags().Lookup("http-port"))         //nolint:errcheck
}

func runAgent(cmd *cobra.Command, args []string) error {
	fmt.Println("🤖 Starting Phoenix Agent")
	fmt.Printf("   Version: %s\n", rootCmd.Version)
	fmt.Printf("   Store: %s\n", cfg.Agent.SyncURL)
	fmt.Printf("   Servers: %s\n", cfg.Agent.ConfigPath)
	fmt.Println()

	// Mint the elevated service token at startup unless one is pinned in
	// the configuration.
	if cfg.Agent.AgentToken == "" {
		if cfg.Security.AgentTokenSecret == "" {
			return fmt.Errorf("security.agent_token_secret is required to mint the agent token")
		}
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		token, err := auth.GenerateAgentToken(
			cfg.Security.AgentTokenSecret,
			hostname,
			7*24*time.Hour,
		)
		if err != nil {
			return fmt.Errorf("failed to generate agent token: %w", err)
		}
		cfg.Agent.AgentToken = token
	}

	a, err := agent.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- a.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
		fmt.Println("\n🛑 Stopping agent...")
		cancel()
		<-errChan
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("agent error: %w", err)
		}
	}

	fmt.Println("✓ Agent stopped")
	return nil
}
