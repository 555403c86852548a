// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"openagent/terminal/internal/logging"
	"openagent/terminal/internal/render"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Operate on stored sessions without entering the console",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, sessions, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer logging.Close()
		defer client.Close()

		list, err := sessions.List(cmd.Context(), sessionsLimit)
		if err != nil {
			return err
		}
		render.Sessions(list)
		return nil
	},
}

var (
	sessionsLimit int
	exportFormat  string
	exportOutput  string
)

var sessionsExportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, sessions, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer logging.Close()
		defer client.Close()

		path, err := sessions.ExportToFile(cmd.Context(), args[0], exportFormat, exportOutput)
		if err != nil {
			return err
		}
		pterm.Success.Println("Exported to " + path)
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a stored session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, sessions, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer logging.Close()
		defer client.Close()

		if err := sessions.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		pterm.Success.Println("Deleted " + args[0])
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 0, "Maximum number of sessions to list (0 for all)")
	sessionsExportCmd.Flags().StringVar(&exportFormat, "format", "markdown", "Export format: markdown, json, or html")
	sessionsExportCmd.Flags().StringVar(&exportOutput, "output", "", "Output file (defaults to <session-id>.<ext>)")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsExportCmd, sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}
