package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/promptlens/internal/config"
)

func runConfigValidate(cmd *cobra.Command) error {
	path := resolveConfigPath(configPath)
	out := cmd.OutOrStdout()

	cfg, err := config.Load(path)
	if err != nil {
		var verr *config.ConfigValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(out, "%s is invalid:\n", path)
			for _, issue := range verr.Issues {
				fmt.Fprintf(out, "  - %s\n", issue)
			}
			return fmt.Errorf("config has %d issue(s)", len(verr.Issues))
		}
		return err
	}
	fmt.Fprintf(out, "%s is valid (%d experiment(s), collector store %s)\n",
		path, len(cfg.Experiments), cfg.Collector.Store.Driver)
	return nil
}

func runConfigSchema(cmd *cobra.Command) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(schema))
	return err
}
