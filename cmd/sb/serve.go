package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sprintboard/internal/app"
	"sprintboard/internal/server"
)

const shutdownTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	var addr, basePath, metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withEnv(ctx, func(ctx context.Context, env *app.Env) error {
				cfg := env.Config
				if !cmd.Flags().Changed("addr") {
					addr = cfg.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") && cfg.Server.BasePath != "" {
					basePath = cfg.Server.BasePath
				}
				if !cmd.Flags().Changed("metrics-addr") {
					metricsAddr = cfg.Server.MetricsAddr
				}
				authCfg := server.AuthConfig{
					JWTSecret:              cfg.Auth.JWTSecret,
					AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
					Logger:                 env.Logger,
				}
				if secret := viper.GetString("jwt-secret"); secret != "" {
					authCfg.JWTSecret = secret
				}
				if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
					return fmt.Errorf("SPRINTBOARD_JWT_SECRET or auth.jwt_secret is required for bearer auth")
				}
				handler, err := server.New(server.Config{
					Engine:   env.Engine,
					BasePath: basePath,
					Auth:     authCfg,
					Logger:   env.Logger,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{
					Addr:              addr,
					Handler:           handler,
					ReadHeaderTimeout: 10 * time.Second,
				}

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					env.Logger.Info("serving api",
						zap.String("url", fmt.Sprintf("http://%s%s", addr, basePath)),
						zap.String("openapi", basePath+"/openapi.json"),
						zap.String("docs", "/docs"))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer cancel()
					return srv.Shutdown(sctx)
				})
				if metricsAddr != "" {
					metrics := server.NewMetricsServer(metricsAddr)
					g.Go(func() error {
						env.Logger.Info("serving metrics", zap.String("addr", metricsAddr))
						if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
							return err
						}
						return nil
					})
					g.Go(func() error {
						<-gctx.Done()
						sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
						defer cancel()
						return metrics.Shutdown(sctx)
					})
				}
				if d := server.NewDispatcher(env.Engine, env.Logger); d != nil {
					g.Go(func() error {
						return d.Run(gctx)
					})
				}
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "separate prometheus listen address")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}
