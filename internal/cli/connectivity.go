package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newConnectivityCmd(opts *rootOptions) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "connectivity",
		Short: "Probe the backend and show availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, false, func(a *app) error {
				a.monitor.Probe(cmd.Context())
				snap := a.monitor.Snapshot()
				availability := a.monitor.Availability()

				if opts.jsonOutput && !watch {
					return printJSON(cmd.OutOrStdout(), map[string]any{
						"snapshot":     snap,
						"availability": availability,
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s: %s", a.cfg.Backend.BaseURL, snap.State)
				if p := snap.LastProbe; p != nil {
					if p.OK {
						fmt.Fprintf(out, " (%d ms)", p.LatencyMs)
					} else {
						fmt.Fprintf(out, " (%s: %s)", p.Cause, p.Error)
					}
				}
				fmt.Fprintf(out, "\navailability %.2f%% over %d probe(s)\n", availability.UptimePercent, availability.TotalProbes)
				if !watch {
					return nil
				}

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				events, cancel := a.monitor.Subscribe()
				defer cancel()
				ticker := time.NewTicker(a.cfg.Connectivity.ReprobeInterval())
				defer ticker.Stop()
				for {
					select {
					case ev, ok := <-events:
						if !ok {
							return nil
						}
						fmt.Fprintf(out, "%s %s -> %s\n", ev.At.Local().Format(time.TimeOnly), ev.From, ev.To)
					case <-ticker.C:
						a.monitor.Probe(ctx)
					case <-ctx.Done():
						return nil
					}
				}
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep running and print state changes")
	return cmd
}
