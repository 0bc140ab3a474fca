package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/prbarcelon/astrbotctl/internal/archive"
	"github.com/prbarcelon/astrbotctl/internal/protocol"
)

var actionHelp = map[protocol.PluginAction]string{
	protocol.ActionOn:        "Enable a plugin",
	protocol.ActionOff:       "Disable a plugin",
	protocol.ActionReload:    "Reload a plugin",
	protocol.ActionUninstall: "Uninstall a plugin",
}

var actionAliases = map[protocol.PluginAction][]string{
	protocol.ActionOn:  {"enable"},
	protocol.ActionOff: {"disable"},
}

func newPluginCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Manage plugins",
	}
	cmd.AddCommand(newPluginGetCommand(rt), newPluginInstallCommand(rt))
	for _, action := range protocol.PluginActions {
		cmd.AddCommand(newPluginActionCommand(rt, action))
	}
	return cmd
}

func newPluginGetCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "List installed plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rt.authedClient()
			if err != nil {
				return err
			}
			rt.logger.Info("fetching plugin list")
			plugins, err := client.ListPlugins(cmd.Context())
			if err != nil {
				return err
			}
			if rt.jsonOut {
				return rt.printJSON(plugins)
			}
			renderPlugins(rt.stdout, rt.styles, plugins)
			return nil
		},
	}
}

func newPluginInstallCommand(rt *runtime) *cobra.Command {
	var (
		fromLocal bool
		fromGit   string
		dir       string
	)
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install a plugin from the current repository or a git url",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rt.authedClient()
			if err != nil {
				return err
			}
			var message string
			switch {
			case fromGit != "":
				rt.logger.Debug("installing plugin from git repository", "url", fromGit)
				message, err = client.InstallPluginFromURL(cmd.Context(), fromGit)
			case fromLocal:
				rt.logger.Debug("installing plugin from local path", "dir", dir)
				builder := archive.Git{Dir: dir, Fallback: true, Logger: rt.logger}
				var path string
				path, err = builder.Create(cmd.Context())
				if err != nil {
					return fmt.Errorf("create plugin archive: %w", err)
				}
				rt.logger.Info("archive created", "path", path)
				message, err = client.InstallPluginFromUpload(cmd.Context(), path)
			default:
				return fmt.Errorf("one of --from-local or --from-git is required")
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(rt.stdout, message)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromLocal, "from-local", false, "archive the current git branch and upload it")
	cmd.Flags().StringVar(&fromGit, "from-git", "", "install from a git repository url")
	cmd.Flags().StringVar(&dir, "dir", "", "plugin directory for --from-local (default: working directory)")
	cmd.MarkFlagsMutuallyExclusive("from-local", "from-git")
	cmd.MarkFlagsOneRequired("from-local", "from-git")
	return cmd
}

func newPluginActionCommand(rt *runtime, action protocol.PluginAction) *cobra.Command {
	return &cobra.Command{
		Use:     action.String() + " NAME",
		Short:   actionHelp[action],
		Aliases: actionAliases[action],
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rt.authedClient()
			if err != nil {
				return err
			}
			resolved, err := protocol.ParsePluginAction(cmd.CalledAs())
			if err != nil {
				return err
			}
			rt.logger.Debug("plugin action", "action", resolved.String(), "plugin", args[0])
			message, err := client.PluginAction(cmd.Context(), args[0], resolved)
			if err != nil {
				return err
			}
			fmt.Fprintln(rt.stdout, message)
			return nil
		},
	}
}
