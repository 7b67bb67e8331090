package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Agalaxie/shadesupport/internal/auth"
	"github.com/Agalaxie/shadesupport/internal/config"
	"github.com/Agalaxie/shadesupport/internal/fallback"
	"github.com/Agalaxie/shadesupport/internal/metrics"
	"github.com/Agalaxie/shadesupport/internal/store"
	"github.com/Agalaxie/shadesupport/internal/web"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ticket API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			addr, _ := cmd.Flags().GetString("addr")
			dev, _ := cmd.Flags().GetBool("dev")

			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if dev {
				cfg.Server.DevMode = true
			}

			return runServer(cfg)
		},
	}

	cmd.Flags().String("config", "", "Config file path")
	cmd.Flags().String("addr", "", "Listen address (overrides config)")
	cmd.Flags().Bool("dev", false, "Development mode: missing identities fall back to the demo user")

	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}

			st, err := store.New(cfg.Storage.DBPath)
			if err != nil {
				return err
			}
			return st.Close()
		},
	}

	cmd.Flags().String("config", "", "Config file path")

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func runServer(cfg *config.Config) error {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	st, err := store.New(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	fb := fallback.New(
		cfg.Fallback.Path,
		time.Duration(cfg.Fallback.RetentionHours)*time.Hour,
		log,
	)

	server := web.NewServer(web.ServerOptions{
		Datastore:  st,
		Fallback:   fb,
		Provider:   auth.HeaderProvider{},
		Syncer:     auth.NewSyncer(st, log),
		Log:        log,
		Metrics:    m,
		Registry:   registry,
		DevMode:    cfg.Server.DevMode,
		UploadsDir: cfg.Server.UploadsDir,
	})

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Server.Addr).Bool("dev", cfg.Server.DevMode).Msg("server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
