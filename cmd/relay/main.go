package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vovakirdan/peerlink/internal/app"
	"github.com/vovakirdan/peerlink/internal/auth"
	"github.com/vovakirdan/peerlink/internal/config"
	"github.com/vovakirdan/peerlink/internal/log"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	var addr string

	root := &cobra.Command{
		Use:           "relay",
		Short:         "peerlink relay and matchmaking server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), flags, addr)
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config.yaml")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), flags, addr)
		},
	}
	for _, c := range []*cobra.Command{root, serveCmd} {
		c.Flags().StringVar(&addr, "addr", "", "HTTP listen address")
	}

	root.AddCommand(serveCmd, newTokenCmd(flags))
	return root
}

func loadConfig(flags *rootFlags) (config.Config, error) {
	bootstrap := log.New("info")
	cfg, path, err := config.Load(bootstrap, flags.configPath)
	if err != nil {
		return cfg, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	bootstrap.Debug().Str("path", path).Msg("config loaded")
	return cfg, nil
}

func serve(parent context.Context, flags *rootFlags, addr string) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Relay.Addr = addr
	}
	logger := log.New(cfg.LogLevel)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg.Relay, logger)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}

	logger.Info().Str("addr", cfg.Relay.Addr).Str("store", cfg.Relay.EventStore).Msg("starting peerlink relay")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("relay exited: %w", err)
	}
	logger.Info().Msg("relay stopped")
	return nil
}

func newTokenCmd(flags *rootFlags) *cobra.Command {
	var name, version string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a peer ticket signed with the relay secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			jwtCfg := app.JWTConfig(&cfg.Relay)
			if jwtCfg == nil {
				return errors.New("relay.jwt_secret is not set")
			}
			if version == "" {
				version = cfg.Peer.GameVersion
			}
			token, err := auth.GenerateToken(jwtCfg, name, version)
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "nickname the ticket is issued to")
	cmd.Flags().StringVar(&version, "version", "", "game version (defaults to peer.game_version)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
