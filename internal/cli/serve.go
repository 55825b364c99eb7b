package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kbdash/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.close()
			if addr == "" {
				addr = a.cfg.ListenAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a.monitor.Start()
			restoreCtx, cancel := context.WithTimeout(ctx, a.cfg.Requests.MutationTimeout())
			if session, ok, err := a.gateway.Restore(restoreCtx); err != nil {
				a.log.Warn("session restore failed", "error", err)
			} else if ok {
				a.log.Info("resumed session", "username", session.User.Username)
			}
			cancel()

			srv := server.New(addr, server.Dependencies{
				Monitor:   a.monitor,
				Gateway:   a.gateway,
				Dashboard: a.dashboard,
				Logger:    a.log,
			})

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					a.log.Error("server shutdown", "error", err)
				}
			}()

			a.log.Info("dashboard ready", "url", "http://"+addr, "backend", a.cfg.Backend.BaseURL)
			if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to listen_addr from the config)")
	return cmd
}
