package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/prbarcelon/astrbotctl/internal/api"
	"github.com/prbarcelon/astrbotctl/internal/config"
)

func newLoginCommand(rt *runtime) *cobra.Command {
	var username, password, server string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to an AstrBot dashboard and save the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				server = rt.cfg.DefaultServer
			}
			if server == "" {
				return errors.New("server url is required (use -s or set default_server in the config)")
			}
			if err := config.ValidateServerURL(server); err != nil {
				return err
			}
			if !cmd.Flags().Changed("password") {
				prompted, err := rt.promptPassword()
				if err != nil {
					return err
				}
				password = prompted
			}

			rt.logger.Info("logging in", "server", server, "username", username)
			client, err := rt.newClient(server, "")
			if err != nil {
				return err
			}
			st, err := rt.openStore()
			if err != nil {
				return err
			}
			creds, err := client.LoginAndSave(cmd.Context(), st, username, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(rt.stdout, "Logged in to %s as %s\n", creds.ServerURL, creds.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "dashboard username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "dashboard password (prompted when omitted)")
	cmd.Flags().StringVarP(&server, "server", "s", "", "dashboard url, e.g. http://localhost:6185")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (rt *runtime) promptPassword() (string, error) {
	fd := int(rt.stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("password is required (use -p when stdin is not a terminal)")
	}
	fmt.Fprint(rt.stderr, "Password: ")
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(rt.stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(string(secret), "\r\n"), nil
}

func newLogoutCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rt.openStore()
			if err != nil {
				return err
			}
			removed, err := st.DeleteCredentials()
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintln(rt.stdout, "Logged out")
			} else {
				fmt.Fprintln(rt.stdout, "Not logged in")
			}
			return nil
		},
	}
}

func newWhoamiCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the saved login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := rt.credentials()
			if err != nil {
				return err
			}
			if rt.jsonOut {
				return rt.printJSON(map[string]string{
					"server_url": creds.ServerURL,
					"username":   creds.Username,
					"token":      api.TokenPreview(creds.Token),
				})
			}
			user := creds.Username
			if user == "" {
				user = "(token only)"
			}
			fmt.Fprintf(rt.stdout, "%s on %s (token %s)\n", user, creds.ServerURL, api.TokenPreview(creds.Token))
			return nil
		},
	}
}
