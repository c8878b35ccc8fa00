package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/listing-scraper/internal/delivery/http/handler"
	"github.com/user/listing-scraper/internal/delivery/http/router"
)

func init() {
	serveCmd.Flags().String("port", "", "HTTP port to listen on.")
	if err := v.BindPFlag("SERVER_PORT", serveCmd.Flags().Lookup("port")); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--port <port>]",
	Short: "Serves the search API and runs queued searches until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := context.WithCancel(cmd.Context())
		defer stop()

		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		// --- HTTP Server ---
		apiHandler := handler.NewHandler(a.manager, a.checks, log.Named("http"))
		server := &http.Server{
			Addr:         ":" + cfg.ServerPort,
			Handler:      router.New(apiHandler, a.metrics, a.registry, log.Named("http")),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 70 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		serverErr := make(chan error, 1)
		go func() {
			log.Info("starting server", zap.String("port", cfg.ServerPort))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
			close(serverErr)
		}()

		// --- Worker ---
		workerDone := make(chan error, 1)
		go func() {
			workerDone <- a.manager.Run(ctx, false)
		}()

		select {
		case <-ctx.Done():
			log.Info("shutting down server...")
		case err := <-serverErr:
			log.Error("could not listen on port", zap.String("port", cfg.ServerPort), zap.Error(err))
			stop()
			<-workerDone
			return err
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
		}

		// The worker restarts the browser before returning.
		select {
		case err := <-workerDone:
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("worker stopped with error", zap.Error(err))
			}
		case <-shutdownCtx.Done():
			log.Warn("worker did not stop in time")
		}

		log.Info("server exiting")
		return nil
	},
}
