package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"recruit-pipeline/infrastructure"
	"recruit-pipeline/interfaces"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API, relay the outbox and push events to websocket clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer c.Close(logger)

		relay := infrastructure.NewOutboxRelay(c.store, c.publisher(), cfg.Outbox, logger.Named("outbox"))
		go relay.Run(ctx)

		if c.rabbit != nil {
			if err := c.rabbit.Consume(ctx, c.hub.Publish); err != nil {
				return err
			}
		}

		if !cfg.Log.Debug {
			gin.SetMode(gin.ReleaseMode)
		}
		router := gin.New()
		router.Use(gin.Recovery())
		interfaces.NewHTTPHandler(router, &interfaces.HTTPHandler{
			Stages:     c.stages,
			Activity:   c.activity,
			Scorecards: c.scorecards,
			Placements: c.placements,
			Hub:        c.hub,
			Timeout:    cfg.Pipeline.OperationTimeout,
			Logger:     logger.Named("http"),
		})

		srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}
		errCh := make(chan error, 1)
		go func() {
			logger.Info("server running", zap.String("addr", cfg.HTTP.Addr))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
