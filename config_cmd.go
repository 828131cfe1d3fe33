package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/sharepoint-mirror/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigValidateCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			return showConfig(cc.Cfg, cc.CfgPath, cc.Flags.JSON, os.Stdout)
		},
	}
}

func showConfig(cfg *config.Config, path string, asJSON bool, w io.Writer) error {
	if !asJSON {
		return config.RenderEffective(cfg, path, w)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(config.Redacted(cfg)); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and report every problem",
		Long: `Load the configuration with all overrides applied and validate it. Every
problem is reported, not just the first. Exit code 1 if any are found.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, path, err := config.Resolve(config.ReadEnvOverrides(), cliOverrides(cmd))
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			mustCLIContext(cmd.Context()).Statusf("%s: configuration is valid\n", path)

			return nil
		},
	}
}
