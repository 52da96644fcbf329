package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/missionctl/internal/app"
	"github.com/dotcommander/missionctl/internal/notify"
	"github.com/dotcommander/missionctl/internal/server"
)

// NewServeCmd starts the HTTP daemon.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the mission control HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := stringFlagOrEnv(cmd.Flags(), "listen", "MISSIONCTL_LISTEN_ADDR")
			if addr == "" {
				addr = app.ListenAddr()
			}

			settings, err := app.LoadSettings()
			if err != nil {
				return cmdErr(err)
			}

			db, closeDB, err := openDB()
			if err != nil {
				return cmdErr(err)
			}
			defer closeDB()

			srv := server.New(server.Config{
				DB:        db,
				Token:     app.APIToken(),
				Sweeps:    app.EffectiveSweepSettings(),
				Chat:      settings.Chat,
				Notifier:  notify.NewSender(settings.Chat),
				Publisher: notify.LogPublisher{},
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe(addr)
			}()

			select {
			case err := <-errCh:
				return cmdErr(err)
			case <-ctx.Done():
			}

			slog.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return cmdErr(err)
			}
			return <-errCh
		},
	}

	cmd.Flags().String("listen", "", "Listen address (default from config or 127.0.0.1:8476)")
	return cmd
}
