package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"kilometers.ai/authclient/internal/application/auth"
	"kilometers.ai/authclient/internal/core/apierror"
)

var (
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(16)
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
)

// newLoginCommand creates the login command
func newLoginCommand(container *CLIContainer) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:     "login",
		Short:   "Log in and store the session tokens",
		Example: `  kmauth login --username alice --password s3cret`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || password == "" {
				return fmt.Errorf("username and password are required")
			}

			if err := container.Session.Login(cmd.Context(), username, password); err != nil {
				return errors.New(describeError(err))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Logged in as %s\n", okStyle.Render("✓"), username)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Account username")
	cmd.Flags().StringVar(&password, "password", "", "Account password")

	return cmd
}

// newLogoutCommand creates the logout command
func newLogoutCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and clear stored tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			container.Session.Logout(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "%s Logged out\n", okStyle.Render("✓"))
			return nil
		},
	}
}

// newStatusCommand creates the status command
func newStatusCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			renderStatus(cmd.OutOrStdout(), container.Session.Status(), time.Now())
			return nil
		},
	}
}

func renderStatus(w io.Writer, status auth.SessionStatus, now time.Time) {
	fmt.Fprintln(w, titleStyle.Render("Session"))

	if !status.LoggedIn {
		fmt.Fprintln(w, row("State", errStyle.Render("logged out")))
		fmt.Fprintln(w, "Run 'kmauth login' to start a session.")
		return
	}

	state := okStyle.Render("active")
	if status.Expired {
		state = warnStyle.Render("expired (refreshed on next request)")
		if !status.HasRefreshToken {
			state = errStyle.Render("expired")
		}
	}
	fmt.Fprintln(w, row("State", state))

	refresh := "no"
	if status.HasRefreshToken {
		refresh = "yes"
	}
	fmt.Fprintln(w, row("Refresh token", refresh))

	expiry := "unknown"
	if status.ExpiresAt != nil {
		expiry = status.ExpiresAt.Local().Format(time.RFC3339)
		if left := status.ExpiresAt.Sub(now); left > 0 {
			expiry += fmt.Sprintf(" (in %s)", left.Round(time.Second))
		}
	}
	fmt.Fprintln(w, row("Expires", expiry))
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

// describeError returns the user-facing message for a failed call
func describeError(err error) string {
	var rec *apierror.ErrorRecord
	if errors.As(err, &rec) {
		if rec.Status > 0 {
			return fmt.Sprintf("%s (%d %s)", rec.Message, rec.Status, rec.Code)
		}
		return rec.Message
	}
	return err.Error()
}
