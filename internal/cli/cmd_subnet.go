package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blacklanternsecurity/trevorproxy/internal/config"
	"github.com/blacklanternsecurity/trevorproxy/internal/diag"
	"github.com/blacklanternsecurity/trevorproxy/internal/dns"
	"github.com/blacklanternsecurity/trevorproxy/internal/egress"
	"github.com/blacklanternsecurity/trevorproxy/internal/platform"
	"github.com/blacklanternsecurity/trevorproxy/internal/socks5"
)

func newSubnetCmd() *cobra.Command {
	var cfg config.SubnetConfig

	cmd := &cobra.Command{
		Use:   "subnet",
		Short: "Egress each session from a pseudo-random address in a locally-routed subnet",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.ListenAddress = listenAddress
			cfg.Port = port
			cfg.Verbose = verbose
			cfg.Quiet = quiet
			cfg.Username = username
			cfg.Password = password
			return runSubnet(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.Subnet, "subnet", "s", "", "CIDR subnet to spray source addresses from (required)")
	flags.StringVarP(&cfg.Interface, "interface", "i", "", "network interface to attach the local route to (auto-detected if empty)")
	_ = cmd.MarkFlagRequired("subnet")

	return cmd
}

func runSubnet(ctx context.Context, cfg config.SubnetConfig) error {
	logger := platform.NewLogger(cfg.Verbose, cfg.Quiet)

	if err := diag.CheckSubnet(ctx); err != nil {
		return err
	}

	iface := cfg.Interface
	if iface == "" {
		var err error
		iface, err = egress.DefaultInterface(ctx)
		if err != nil {
			return err
		}
	}

	binder, err := egress.New(cfg.Subnet, iface, nil, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := binder.Start(ctx); err != nil {
		return err
	}
	defer binder.Stop(context.Background())

	dialer := &socks5.SubnetDialer{Binder: binder, Logger: logger}
	creds := credentialsFrom(cfg.Username, cfg.Password)
	server := socks5.NewServer(addrString(cfg.ListenAddress, cfg.Port), dialer, dns.NewResolver("1.1.1.1"), creds, binder.Version() == 6, logger)

	return server.Serve(ctx)
}
