package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/sharepoint-sync/internal/config"
)

const maskedSecret = "********"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	if flagJSON {
		return printJSON(os.Stdout, maskedConfig(resolvedCfg))
	}

	return config.RenderEffective(resolvedCfg, os.Stdout)
}

// maskedConfig copies r with the client secret hidden.
func maskedConfig(r *config.Resolved) config.Resolved {
	out := *r
	if out.ClientSecret != "" {
		out.ClientSecret = maskedSecret
	}

	return out
}
