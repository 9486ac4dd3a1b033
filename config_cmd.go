package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/gcal-go/internal/config"
)

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
		Use:         "show",
		Short:       "Display effective configuration after all overrides",
		Annotations: map[string]string{offlineAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE:        runConfigShow,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	return config.RenderEffective(cc.Cfg, cmd.OutOrStdout())
}
