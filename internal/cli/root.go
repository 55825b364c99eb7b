// Package cli wires the dashboard components into a cobra command tree.
package cli

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	apiURL     string
	verbose    bool
	jsonOutput bool
}

// NewRootCmd builds the kbdash command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "kbdash",
		Short: "Knowledge base dashboard",
		Long: `kbdash is a client for the knowledge base backend. It serves a local web
dashboard and exposes the same operations as commands.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "config.yaml", "path to configuration file (YAML)")
	flags.StringVar(&opts.apiURL, "api-url", "", "backend base URL (overrides KB_API_URL and the config file)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newLoginCmd(opts),
		newRegisterCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newStatusCmd(opts),
		newDocsCmd(opts),
		newAskCmd(opts),
		newSpeakCmd(opts),
		newVoicesCmd(opts),
		newModelsCmd(opts),
		newPrefsCmd(opts),
		newConnectivityCmd(opts),
	)
	return rootCmd
}
