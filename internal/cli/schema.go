package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/skillbridge/pkg/plugin"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of *.skill.json manifests",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), plugin.ManifestSchema)
		},
	}
}
