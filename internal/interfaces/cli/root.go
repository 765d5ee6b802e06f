package cli

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"kilometers.ai/authclient/internal/application/auth"
	"kilometers.ai/authclient/internal/core/events"
	httpports "kilometers.ai/authclient/internal/core/ports/http"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// Overrides applies command line flags to the running container
type Overrides interface {
	ApplyBaseURLOverride(baseURL string) error
	ApplyDebugOverride(debug bool)
}

// LocationSetter records what the CLI is currently working against
type LocationSetter interface {
	Set(location string)
}

// CLIContainer holds all the dependencies for CLI commands
type CLIContainer struct {
	Session     *auth.Session
	Coordinator *auth.Coordinator
	Client      httpports.Doer
	Bus         *events.Bus
	Location    LocationSetter
	Overrides   Overrides
}

// NewRootCommand represents the base command when called without any subcommands
func NewRootCommand(container *CLIContainer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kmauth",
		Short: "Authenticated HTTP client with automatic token refresh",
		Long: `kmauth sends requests to an API on behalf of a logged-in user.

Expired access tokens are refreshed once per burst of failing requests;
requests that fail while the refresh is in flight are replayed in order
with the new token. When the session cannot be recovered the stored
credentials are cleared and you are asked to log in again.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := applyConfigurationOverrides(cmd, container); err != nil {
				return fmt.Errorf("failed to apply configuration overrides: %w", err)
			}
			return nil
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("base-url", "", "API base URL (overrides KMAUTH_BASE_URL)")

	rootCmd.AddCommand(newLoginCommand(container))
	rootCmd.AddCommand(newLogoutCommand(container))
	rootCmd.AddCommand(newStatusCommand(container))
	rootCmd.AddCommand(newRequestCommand(container))
	rootCmd.AddCommand(newWatchCommand(container))

	return rootCmd
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}

// applyConfigurationOverrides applies flags that were explicitly set
func applyConfigurationOverrides(cmd *cobra.Command, container *CLIContainer) error {
	if container.Overrides == nil {
		return nil
	}

	if cmd.Flags().Changed("base-url") {
		baseURL, _ := cmd.Flags().GetString("base-url")
		if err := container.Overrides.ApplyBaseURLOverride(baseURL); err != nil {
			return fmt.Errorf("failed to override base URL: %w", err)
		}
	}

	if debugFlag, _ := cmd.Flags().GetBool("debug"); debugFlag {
		container.Overrides.ApplyDebugOverride(true)
	}
	return nil
}

// Execute runs the root command with ctx, reporting a failure on stderr
func Execute(ctx context.Context, container *CLIContainer) error {
	rootCmd := NewRootCommand(container)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
