package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"caseline/internal/app"
	"caseline/internal/events"
	"caseline/internal/logger"
	"caseline/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	var relayInterval time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			authCfg := server.AuthConfig{
				JWTSecret:     viper.GetString("jwt_secret"),
				AllowDevLogin: devLogin,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("CASELINE_JWT_SECRET is required for bearer auth")
			}
			log := logger.New("caseline")
			authCfg.Logger = log

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.Open(ctx, viper.GetString("workspace"), log)
			if err != nil {
				return err
			}
			defer a.Close()

			sinks, closeSinks, err := events.SinksFromConfig(a.Config, log)
			if err != nil {
				return fmt.Errorf("event sinks: %w", err)
			}
			defer closeSinks()
			if len(sinks) > 0 {
				relay := &events.Relay{
					Source:   a.Store,
					Sinks:    sinks,
					Interval: relayInterval,
					Log:      log.WithField("component", "relay"),
					Metrics:  a.Metrics,
				}
				go relay.Run(ctx)
				log.WithField("sinks", len(sinks)).Info("event relay started")
			}

			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				BasePath: basePath,
				Auth:     authCfg,
				Metrics:  a.Metrics,
				Log:      log,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			log.WithField("addr", addr).Info("serving caseline api")
			fmt.Printf("Serving Caseline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login (local testing only)")
	cmd.Flags().DurationVar(&relayInterval, "relay-interval", 2*time.Second, "event relay poll interval")
	return cmd
}
