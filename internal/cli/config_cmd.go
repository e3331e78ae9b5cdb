package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bobsummerwill/strato-fix-all-the-things/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		// The token is env-only and excluded from marshaling; note its
		// presence without printing it.
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		if cfg.Autofix.GitHubToken != "" {
			fmt.Fprintln(cmd.OutOrStdout(), "# GH_TOKEN: set")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "# GH_TOKEN: not set")
		}

		if errs := config.Validate(cfg); len(errs) > 0 {
			fmt.Fprintln(cmd.OutOrStdout())
			for _, e := range errs {
				fmt.Fprintf(cmd.OutOrStdout(), "# INVALID: %s\n", e)
			}
		}
		return nil
	},
}
