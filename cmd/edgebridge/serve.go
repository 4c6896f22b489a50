package main

import (
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/awantoch/edgebridge/config"
	bhttp "github.com/awantoch/edgebridge/http"
	"github.com/awantoch/edgebridge/telemetry"
	"github.com/awantoch/edgebridge/utils"
)

// newServeCmd creates the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local edgebridge server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(addr)
			if err != nil {
				return err
			}
			if err := telemetry.Init(cfg); err != nil {
				return utils.Errorf("failed to initialize tracing: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return bhttp.StartServer(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (host:port), overrides config and HOST/PORT")
	return cmd
}

func loadServeConfig(addr string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, utils.Errorf("failed to load config %s: %w", configPath, err)
	}
	// config.Load applies the configured log level; the flag wins.
	applyDebug()
	if addr == "" {
		return cfg, nil
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, utils.Errorf("invalid --addr %q: %w", addr, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return nil, utils.Errorf("invalid --addr port %q: %w", port, err)
	}
	cfg.HTTP.Host = host
	cfg.HTTP.Port = p
	return cfg, nil
}
