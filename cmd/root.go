// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for the OpenAgent terminal
// frontend. The bare command starts the interactive console; subcommands
// operate on stored sessions and the configuration file.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"openagent/terminal/internal/config"
	"openagent/terminal/internal/console"
	"openagent/terminal/internal/ipc"
	"openagent/terminal/internal/logging"
	"openagent/terminal/internal/session"
	"openagent/terminal/internal/terminal"
)

var (
	flagSocket   string
	flagLogLevel string
	showVersion  bool
)

// rootCmd starts the interactive console when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:           "openagent",
	Short:         "Terminal frontend for the OpenAgent backend",
	Long:          `OpenAgent Terminal connects to a local agent backend over a unix socket and streams answers, tool approvals, and session history into your terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("openagent %s\n", Version)
			return nil
		}
		return runConsole(cmd.Context())
	},
}

// Execute runs the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSocket, "socket", "", "Backend socket path (overrides config and "+config.EnvSocket+")")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
}

func runConsole(ctx context.Context) error {
	cfg, client, sessions, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer logging.Close()
	defer client.Close()

	return console.New(client, sessions, cfg, logging.L()).Run(ctx)
}

// bootstrap loads config, starts logging, connects, and performs the
// initialize handshake. On error nothing is left running.
func bootstrap(ctx context.Context) (config.Config, *ipc.Client, *session.Manager, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, nil, err
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if path, err := logging.DefaultLogPath(); err == nil {
		if err := logging.Init(path); err != nil {
			fmt.Fprintf(os.Stderr, "warning: file logging disabled: %v\n", err)
		}
	}
	logging.SetLevel(cfg.LogLevel)
	log := logging.L()

	socket := cfg.SocketPath(flagSocket)
	client := ipc.New(ipc.Options{
		RequestTimeout: cfg.RequestTimeout(),
		BackoffBase:    cfg.BackoffBase(),
		MaxRetries:     cfg.MaxRetries(),
		Logger:         log,
	})

	spinner, _ := pterm.DefaultSpinner.Start("Connecting to " + socket)
	if err := client.Connect(ctx, socket); err != nil {
		if spinner != nil {
			spinner.Fail("Backend unreachable")
		}
		_ = client.Close()
		return cfg, nil, nil, fmt.Errorf("cannot reach backend at %s: %w", socket, err)
	}

	cols, rows := terminal.Size()
	_, err = client.Initialize(ctx, ipc.ClientInfo{
		Name:       "openagent-terminal",
		Version:    Version,
		InstanceID: uuid.NewString(),
		Cols:       cols,
		Rows:       rows,
	})
	if err != nil {
		if spinner != nil {
			spinner.Fail("Handshake failed")
		}
		_ = client.Close()
		return cfg, nil, nil, fmt.Errorf("initialize handshake failed: %w", err)
	}
	if spinner != nil {
		spinner.Success("Connected")
	}

	sessions, err := session.NewManager(client, log)
	if err != nil {
		_ = client.Close()
		return cfg, nil, nil, err
	}
	return cfg, client, sessions, nil
}
