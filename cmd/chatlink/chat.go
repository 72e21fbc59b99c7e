package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/electromart/chatlink"
	"github.com/electromart/chatlink/pkg/config"
	"github.com/electromart/chatlink/pkg/observability"
)

func newChatCmd() *cobra.Command {
	var (
		configFile string
		serverURL  string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Connect to the support backend and chat interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, serverURL)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "configuration file (YAML)")
	cmd.Flags().StringVar(&serverURL, "server", "", "websocket endpoint (overrides config)")
	return cmd
}

func loadConfig(configFile, serverURL string) (*config.Config, error) {
	cfg := &config.Config{}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runChat(ctx context.Context, cfg *config.Config) error {
	observability.InitMetrics()
	health := observability.NewHealthChecker()

	if cfg.Observability.MetricsPort > 0 {
		srv := observability.NewServer(cfg.Observability.MetricsPort, health)
		go func() {
			log.Printf("Observability server on :%d", cfg.Observability.MetricsPort)
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Observability server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	client, err := chatlink.Open(cfg, chatlink.WithHealth(health))
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Printf("Close error: %v", err)
		}
	}()

	if err := client.Connect(ctx); err != nil {
		return err
	}
	log.Printf("Connecting to %s ...", cfg.ServerURL)

	return runREPL(client)
}
