package commands

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Canvas/internal/discovery"
	"github.com/dkeye/Canvas/internal/printer"
	"github.com/spf13/cobra"
)

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List relays advertised on the LAN",
	Long: `Browse mDNS for canvas relays and print their websocket addresses.

Examples:
  canvas discover
  canvas discover --timeout 10s`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVarP(&discoverTimeout, "timeout", "t", 3*time.Second, "how long to listen for answers")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	printer.Info("looking for %s relays for %s...", cfg.MDNS.Service, discoverTimeout)
	n := 0
	err := discovery.Browse(cmd.Context(), cfg.MDNS.Service, discoverTimeout, func(r discovery.Relay) {
		n++
		printer.Success("%s  %s", r.Name, r.URL())
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return printer.Error("mDNS query failed", err.Error(), "check that multicast is allowed on this network")
	}
	if n == 0 {
		printer.Warning("no relay answered")
	}
	return nil
}
