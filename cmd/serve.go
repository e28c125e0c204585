package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sunnyswag/RTCStartupDemo/internal/config"
	"github.com/sunnyswag/RTCStartupDemo/internal/rendezvous"
	"github.com/sunnyswag/RTCStartupDemo/internal/server"
)

const shutdownTimeout = 5 * time.Second

var flagListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rendezvous server",
	Long: `Run the rendezvous server that rooms are joined through.

Endpoints:
  GET /ws      websocket for room members
  GET /rooms   current rooms and members as JSON
  GET /health  liveness probe

Examples:
  rtcdemo serve
  rtcdemo serve --listen :9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(config.Options{
			ConfigFile: flagConfigFile,
			Listen:     flagListen,
		})
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg.Listen, initLogging(slog.LevelInfo))
	},
}

func serve(parent context.Context, addr string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := rendezvous.NewHub(logger)
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		logger.Info("starting rendezvous server", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down rendezvous server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		hub.Stop()
		return err
	})
	return g.Wait()
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&flagListen, "listen", "l", "", "Listen address (env RTCDEMO_LISTEN, default :8080)")
}
