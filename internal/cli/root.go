package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X ...cli.version=..."
var version = "0.1.0"

// options holds the flag values shared by all commands
type options struct {
	cfgFile    string
	logLevel   string
	pluginsDir string
}

// NewRootCmd builds the command tree. Running the root command serves the
// bridge on stdin/stdout.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "skillbridge",
		Short: "Skillbridge - stdio host for chat-bot skill plugins",
		Long: `Skillbridge loads skill plugins from a directory tree and serves them to an
orchestrator over line-delimited JSON on stdin and stdout. Diagnostics go to
stderr and, above the protocol level, to the orchestrator as log messages.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.pluginsDir, "plugins-dir", "plugins/lua", "plugin root directory")

	addServeFlags(rootCmd)

	rootCmd.AddCommand(newListCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newSchemaCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "skillbridge version %s\n", version)
		},
	})

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
	return rootCmd
}

// Execute builds the command tree and runs it. This is called by main.main().
func Execute() error {
	return NewRootCmd().Execute()
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}
