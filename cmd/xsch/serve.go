package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"xsch-membership-backend/pkg/config"
	"xsch-membership-backend/pkg/logging"
	"xsch-membership-backend/pkg/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(cfg func() *config.Config) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			if port != "" {
				c.Port = port
			}
			if err := c.Validate(); err != nil {
				return err
			}

			db := openDatabase(c)
			defer db.Close()

			srv := &http.Server{
				Addr:              ":" + c.Port,
				Handler:           server.NewRouter(c, db),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logging.L().Info("🚀 Server listening", zap.String("addr", srv.Addr), zap.String("environment", c.Environment))
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server stopped: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logging.L().Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	return cmd
}
