package cli

import (
	"github.com/spf13/cobra"

	"github.com/blacklanternsecurity/trevorproxy/internal/config"
)

// version is set by main via SetVersion (main's own version is set at build
// time via ldflags).
var version = "dev"

// Persistent flags shared by subnet and ssh, seeded from
// ~/.trevorproxy/config.yaml and overridable per invocation.
var (
	listenAddress string
	port          int
	verbose       bool
	quiet         bool
	username      string
	password      string
)

func NewRootCmd() *cobra.Command {
	defaults, _ := config.Load()

	root := &cobra.Command{
		Use:   "trevorproxy",
		Short: "SOCKS5 proxy that load-balances outbound connections across egress identities",
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVarP(&listenAddress, "listen-address", "l", defaults.ListenAddress, "SOCKS5 listen address")
	pf.IntVarP(&port, "port", "p", defaults.Port, "SOCKS5 listen port")
	pf.BoolVarP(&verbose, "verbose", "v", defaults.Verbose, "enable debug logging")
	pf.BoolVarP(&quiet, "quiet", "q", defaults.Quiet, "only log warnings and errors")
	pf.StringVar(&username, "username", "", "optional SOCKS5 username (requires --password)")
	pf.StringVar(&password, "password", "", "optional SOCKS5 password (requires --username)")

	root.AddCommand(
		newVersionCmd(),
		newSubnetCmd(),
		newSSHCmd(),
	)

	return root
}

// SetVersion sets the version string (called from main).
func SetVersion(v string) {
	version = v
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the trevorproxy version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Println(version)
			return nil
		},
	}
}
