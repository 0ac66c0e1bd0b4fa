package main

import (
	"galleryview/internal/app"

	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gallery viewer",
	Long: `Run the gallery viewer.

Every browser tab gets a session over /ws that renders the day list and the
image grid. New uploads announced on LIVE_URL appear without a reload.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if servePort > 0 {
		cfg.Port = servePort
	}
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	return app.NewApp(cfg, log).Run(ctx)
}
