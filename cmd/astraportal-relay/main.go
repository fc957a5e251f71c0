// Command astraportal-relay runs a local websocket relay in front of the
// live endpoint so client machines never hold the API key.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/astraportal/astraportal/internal/config"
	"github.com/astraportal/astraportal/pkg/live/channel"
	"github.com/astraportal/astraportal/pkg/relay"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		listen   string
		upstream string
	)
	cmd := &cobra.Command{
		Use:          "astraportal-relay",
		Short:        "Key-injecting websocket relay for live sessions",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if upstream == "" {
				upstream = channel.DefaultEndpoint
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			handler, err := relay.New(relay.Config{
				APIKey:   cfg.APIKey,
				Upstream: upstream,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			logger.Info("relay listening", "addr", listen, "upstream", upstream)
			return http.ListenAndServe(listen, handler)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":8790", "listen address")
	cmd.Flags().StringVar(&upstream, "upstream", "", "upstream live endpoint URL")
	return cmd
}
