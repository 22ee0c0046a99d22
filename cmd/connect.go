package cmd

import (
	"fmt"
	"io"

	"github.com/blacktop/socialcast/internal/social"
	"github.com/spf13/cobra"
)

func newConnectCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connect <platform>",
		Short: "Store credentials from the environment and check the connection",
		Long: "connect reads SOCIALCAST_<PLATFORM>_<FIELD> variables (or the platform's credentials_env " +
			"mapping in config.yaml), saves them to the credential store and verifies them.",
		Example: `  SOCIALCAST_DISCORD_WEBHOOK_URL=https://discord.com/api/webhooks/1/x socialcast connect discord`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := social.ParsePlatform(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			creds, err := a.cfg.Credentials(p)
			if err != nil {
				return err
			}
			status, err := a.manager.Connect(cmd.Context(), p, creds, a.cfg.Override(p))
			if err != nil {
				return err
			}
			if root.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), status)
			}
			printStatus(cmd.OutOrStdout(), status)
			if !status.Connected {
				return fmt.Errorf("%s: credentials saved but connection failed", p)
			}
			return nil
		},
	}
}

func newDisconnectCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <platform>",
		Short: "Deactivate the stored credentials of a platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := social.ParsePlatform(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.manager.Disconnect(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "disconnected %s\n", p)
			return nil
		},
	}
}

func newRefreshCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <platform>",
		Short: "Renew the access token of a stored connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := social.ParsePlatform(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.register(cmd.Context(), []social.Platform{p}); err != nil {
				return err
			}
			ok, err := a.manager.RefreshToken(cmd.Context(), p)
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintf(cmd.OutOrStdout(), "refreshed %s token\n", p)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s does not use refreshable tokens\n", p)
			}
			return nil
		},
	}
}

func printStatus(out io.Writer, s social.ConnectionStatus) {
	mark := "✗"
	if s.Connected {
		mark = "✓"
	}
	line := fmt.Sprintf("%s %-10s %-8s", mark, s.Platform, s.Health)
	if s.Account != nil {
		name := s.Account.Username
		if name == "" {
			name = s.Account.Name
		}
		line += " " + name
	}
	if s.Error != "" {
		line += " (" + s.Error + ")"
	}
	fmt.Fprintln(out, line)
}
