package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newStatCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "stat",
		Short: "Show bot statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rt.authedClient()
			if err != nil {
				return err
			}
			rt.logger.Info("fetching stat")
			stat, err := client.GetStat(cmd.Context())
			if err != nil {
				return err
			}
			if rt.jsonOut {
				return rt.printJSON(stat)
			}
			renderStat(rt.stdout, rt.styles, stat)
			return nil
		},
	}
}

func newLogCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Read bot logs",
	}
	cmd.AddCommand(newLogLiveCommand(rt), newLogHistoryCommand(rt))
	return cmd
}

func newLogLiveCommand(rt *runtime) *cobra.Command {
	var flush bool
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Tail the live log until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rt.authedClient()
			if err != nil {
				return err
			}
			return client.StreamLiveLog(cmd.Context(), rt.stdout, flush)
		},
	}
	cmd.Flags().BoolVar(&flush, "flush", false, "clear the screen before each line")
	return cmd
}

func newLogHistoryCommand(rt *runtime) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "history [OUTPUT_FILE]",
		Short: "Download the buffered log history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if output != "" {
					return fmt.Errorf("output file given twice (%s and %s)", args[0], output)
				}
				output = args[0]
			}
			client, err := rt.authedClient()
			if err != nil {
				return err
			}
			rt.logger.Info("fetching log history")
			history, err := client.GetLogHistory(cmd.Context())
			if err != nil {
				return err
			}

			var w io.Writer = rt.stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			buf := bufio.NewWriter(w)
			for _, record := range history.Logs {
				if _, err := fmt.Fprintln(buf, record.RenderLine()); err != nil {
					return fmt.Errorf("write log history: %w", err)
				}
			}
			if err := buf.Flush(); err != nil {
				return fmt.Errorf("write log history: %w", err)
			}
			if output != "" {
				rt.logger.Info("log history saved", "path", output, "lines", len(history.Logs))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func newHistoryCommand(rt *runtime) *cobra.Command {
	var (
		limit int
		path  string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show locally recorded API requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rt.openStore()
			if err != nil {
				return err
			}
			items, err := st.ListHistory(path, limit)
			if err != nil {
				return err
			}
			if rt.jsonOut {
				return rt.printJSON(items)
			}
			renderHistory(rt.stdout, rt.styles, items)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to show")
	cmd.Flags().StringVar(&path, "path", "", "only show requests to this API path")
	return cmd
}

func newVersionCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(rt.stdout, "astrbot %s\n", Version)
			return nil
		},
	}
}
