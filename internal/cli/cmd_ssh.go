package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/blacklanternsecurity/trevorproxy/internal/config"
	"github.com/blacklanternsecurity/trevorproxy/internal/diag"
	"github.com/blacklanternsecurity/trevorproxy/internal/dns"
	"github.com/blacklanternsecurity/trevorproxy/internal/platform"
	"github.com/blacklanternsecurity/trevorproxy/internal/socks5"
	"github.com/blacklanternsecurity/trevorproxy/internal/sshpool"
)

func newSSHCmd() *cobra.Command {
	var cfg config.SSHConfig
	var promptPassphrase bool

	cmd := &cobra.Command{
		Use:   "ssh <user@host>...",
		Short: "Round-robin outbound sessions across a pool of SSH dynamic-forward tunnels",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Hosts = args
			cfg.ListenAddress = listenAddress
			cfg.Port = port
			cfg.Verbose = verbose
			cfg.Quiet = quiet
			cfg.Username = username
			cfg.Password = password

			if promptPassphrase {
				passphrase, err := readPassphrase()
				if err != nil {
					return err
				}
				cfg.Passphrase = passphrase
			}
			return runSSH(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.KeyPath, "key", "k", "", "path to an SSH identity file")
	flags.IntVar(&cfg.BasePort, "base-port", platform.DefaultBasePort, "first local port used for SSH dynamic forwards")
	flags.BoolVar(&cfg.Direct, "current-ip", false, "include the host's own address as an extra round-robin slot")
	flags.BoolVar(&promptPassphrase, "ask-passphrase", false, "prompt for a passphrase to answer ssh's interactive prompt")
	flags.StringVar(&cfg.DispatchAddr, "dispatch-target", "", "host:port to additionally fan out across the tunnel pool at the kernel packet-filter level")

	return cmd
}

// readPassphrase prompts on the controlling terminal with echo disabled; the
// value is held only in memory and never logged.
func readPassphrase() (string, error) {
	fmt.Fprint(os.Stderr, "SSH passphrase: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(b), nil
}

func runSSH(ctx context.Context, cfg config.SSHConfig) error {
	logger := platform.NewLogger(cfg.Verbose, cfg.Quiet)

	if err := diag.CheckSSH(ctx); err != nil {
		return err
	}

	pool := sshpool.NewPool(cfg.Hosts, cfg.KeyPath, cfg.Passphrase, cfg.BasePort, cfg.Direct, logger)

	if cfg.DispatchAddr != "" {
		host, portStr, err := net.SplitHostPort(cfg.DispatchAddr)
		if err != nil {
			return fmt.Errorf("invalid --dispatch-target %q: %w", cfg.DispatchAddr, err)
		}
		dispatchPort, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid --dispatch-target port %q: %w", portStr, err)
		}
		pool.EnableDispatch(host, dispatchPort)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := pool.Start(ctx, 30*time.Second); err != nil {
		return err
	}
	defer pool.Stop(context.Background())

	dialer := &socks5.TunnelDialer{Pool: pool, Logger: logger}
	creds := credentialsFrom(cfg.Username, cfg.Password)
	server := socks5.NewServer(addrString(cfg.ListenAddress, cfg.Port), dialer, dns.NewResolver("1.1.1.1"), creds, false, logger)

	return server.Serve(ctx)
}
