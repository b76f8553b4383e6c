package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"ResaleScanner/internal/app"
	"ResaleScanner/internal/config"
	"ResaleScanner/internal/logging"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var logLevelFlag string

	load := func() (config.Config, error) {
		cfg, err := config.Load(configFlag)
		if err != nil {
			return config.Config{}, err
		}
		if level := strings.TrimSpace(logLevelFlag); level != "" {
			cfg.Logging.Level = level
		}
		return cfg, nil
	}

	rootCmd := &cobra.Command{
		Use:           "resalescanner",
		Short:         "Scan source listings and republish them on the destination marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScanner(cmd, load)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run search cycles until a termination signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScanner(cmd, load)
		},
	})
	rootCmd.AddCommand(newCheckConfigCommand(load))

	return rootCmd
}

func runScanner(cmd *cobra.Command, load func() (config.Config, error)) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	logger := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	application, err := app.New(cmd.Context(), cfg, logger, app.Deps{})
	if err != nil {
		return err
	}
	return application.Run(cmd.Context())
}

func newCheckConfigCommand(load func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate configuration and print the function table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderFunctions(cfg.Functions.Entries()))
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration invalid: %w", err)
			}
			fmt.Fprintf(out, "Configuration valid (store %s, deploy env %s)\n", cfg.Store.Driver, cfg.DeployEnv)
			return nil
		},
	}
}

func renderFunctions(entries []config.FunctionEntry) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Step", "Variable", "Function"})
	for _, e := range entries {
		ref := e.Ref
		if ref == "" {
			ref = "(missing)"
		}
		tw.AppendRow(table.Row{e.Name, e.Env, ref})
	}
	return tw.Render()
}
