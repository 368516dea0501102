package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mj1618/ax-mcp/internal/config"
	"github.com/mj1618/ax-mcp/pkg/axmcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve this process's accessibility tree",
	Long: `Start the accessibility server in this process and block until it stops.

The CLI process has no UI of its own, so this is mainly useful with the mock
backend or for checking that a backend can reach the platform service.

Supported transports:
  stdio       Newline-delimited JSON envelopes on stdin/stdout (default)
  unix        Newline-delimited JSON envelopes on a Unix socket
  http        POST /mcp with one envelope per request, plus /health and /metrics
  mcp-stdio   Model Context Protocol tools on stdin/stdout
  mcp-http    Model Context Protocol tools over streamable HTTP on /mcp

Examples:
  ax-mcp serve --backend mock
  ax-mcp serve --backend mock --transport http --addr 127.0.0.1:7420
  ax-mcp serve --config ax-mcp.yaml --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveConfigPath string
	serveFlags      = config.Default()
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "YAML config file; flags override its values")
	serveFlags.AddFlags(serveCmd.Flags())
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(serveConfigPath, cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := axmcp.Start(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	<-h.Done()
	return h.Close()
}

// resolveConfig loads the config file and applies every flag the user set
// on top of it.
func resolveConfig(path string, flags *pflag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	overlay := pflag.NewFlagSet("config", pflag.ContinueOnError)
	cfg.AddFlags(overlay)

	var setErr error
	flags.Visit(func(f *pflag.Flag) {
		dst := overlay.Lookup(f.Name)
		if dst == nil || setErr != nil {
			return
		}
		if src, ok := f.Value.(pflag.SliceValue); ok {
			setErr = dst.Value.(pflag.SliceValue).Replace(src.GetSlice())
			return
		}
		if err := dst.Value.Set(f.Value.String()); err != nil {
			setErr = fmt.Errorf("--%s: %w", f.Name, err)
		}
	})
	return cfg, setErr
}
