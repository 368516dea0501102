package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mj1618/ax-mcp/internal/output"
	"github.com/mj1618/ax-mcp/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "ax-mcp",
	Short: "Serve the accessibility tree of a running application",
	Long: `ax-mcp exposes an application's accessibility tree to agents over a small
versioned request/response protocol, and as Model Context Protocol tools.

Embed it with pkg/axmcp to serve your own process, or run "ax-mcp serve
--backend mock" to try the protocol against an in-memory tree.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version.Version, version.Commit, version.BuildDate)
	rootCmd.PersistentFlags().String("format", "", "Output format: yaml, json (default yaml on a terminal, json when piped)")
	rootCmd.PersistentFlags().Bool("pretty", false, "Indent JSON output")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		name, _ := rootCmd.PersistentFlags().GetString("format")
		format, err := output.ParseFormat(name)
		if err != nil {
			return err
		}
		output.OutputFormat = format
		if pretty, err := rootCmd.PersistentFlags().GetBool("pretty"); err == nil && pretty {
			output.PrettyOutput = true
		}
		return nil
	}
}
