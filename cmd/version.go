package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mj1618/ax-mcp/internal/output"
	"github.com/mj1618/ax-mcp/internal/platform"
	"github.com/mj1618/ax-mcp/internal/protocol"
	"github.com/mj1618/ax-mcp/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version, protocol version and available backends",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return output.Print(versionInfo{
			Version:         version.Version,
			Commit:          version.Commit,
			BuildDate:       version.BuildDate,
			ProtocolVersion: protocol.Version,
			NativeBackend:   platform.NativeBackend,
			Backends:        platform.Backends(),
		})
	},
}

type versionInfo struct {
	Version         string   `json:"version"                  yaml:"version"`
	Commit          string   `json:"commit"                   yaml:"commit"`
	BuildDate       string   `json:"build_date"               yaml:"build_date"`
	ProtocolVersion string   `json:"protocol_version"         yaml:"protocol_version"`
	NativeBackend   string   `json:"native_backend,omitempty" yaml:"native_backend,omitempty"`
	Backends        []string `json:"backends"                 yaml:"backends"`
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
