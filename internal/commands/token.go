package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"evalgo.org/phoenix/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage authentication tokens",
	Long:  `Generate and manage authentication tokens for agents and users`,
}

var generateAgentTokenCmd = &cobra.Command{
	Use:   "agent [hostname]",
	Short: "Generate an agent authentication token",
	Long: `Generate the elevated JWT the agent presents to the store sync
endpoint. The token is signed with agent_token_secret from the
configuration file and carries the hostname in the claims. By default,
tokens expire after 1 year.

Examples:
  # Generate token for the host "basement-rack"
  phoenix token agent basement-rack

  # Generate token with custom expiration (in hours)
  phoenix token agent basement-rack --expiration 8760

  # Use custom secret (overrides config)
  phoenix token agent basement-rack --secret "my-custom-secret"`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerateAgentToken,
}

var (
	tokenExpiration int64
	tokenSecret     string
)

func init() {
	// Add flags to generate command
	generateAgentTokenCmd.Flags().Int64Var(&tokenExpiration, "expiration", 8760, "Token expiration in hours (default: 8760 = 1 year)")
	generateAgentTokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "Agent token secret (default: from config file)")

	// Add subcommands
	tokenCmd.AddCommand(generateAgentTokenCmd)
}

func runGenerateAgentToken(cmd *cobra.Command, args []string) error {
	hostname := args[0]

	// Get secret from flag or config
	secret := tokenSecret
	if secret == "" {
		if cfg != nil {
			secret = cfg.Security.AgentTokenSecret
		}

		if secret == "" {
			return fmt.Errorf(`agent_token_secret not found in config file and --secret not provided

Please either:
  1. Add to your config.yaml:
     security:
       agent_token_secret: your-secret-here

  2. Or use the --secret flag:
     phoenix token agent %s --secret "your-secret-here"`, hostname)
		}
	}

	// Convert expiration from hours to duration
	expiration := time.Duration(tokenExpiration) * time.Hour

	// Generate token
	token, err := auth.GenerateAgentToken(secret, hostname, expiration)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	// Print token information
	fmt.Printf("Agent Token Generated Successfully\n")
	fmt.Printf("==================================\n\n")
	fmt.Printf("Hostname:   %s\n", hostname)
	fmt.Printf("Expiration: %s (%d hours)\n", expiration, tokenExpiration)
	fmt.Printf("\nToken:\n%s\n\n", token)
	fmt.Printf("Add this to your agent configuration:\n")
	fmt.Printf("  agent:\n")
	fmt.Printf("    agent_token: %s\n\n", token)
	fmt.Printf("⚠️  Keep this token secure! It grants full elevated access to the store.\n")

	return nil
}
