package main

import (
	"galleryview/internal/app"

	"github.com/spf13/cobra"
)

var backendPort int

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Run the reference image backend",
	Long: `Run the reference image backend.

It accepts JPEG uploads on POST /receive, files them by day, and serves
/get-days, /get-images-by-day, /get-images and the /ws push socket.`,
	RunE: runBackend,
}

func init() {
	backendCmd.Flags().IntVarP(&backendPort, "port", "p", 0, "listen port (overrides BACKEND_PORT)")
}

func runBackend(cmd *cobra.Command, args []string) error {
	if backendPort > 0 {
		cfg.Backend.Port = backendPort
	}
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	b, err := app.NewBackend(cfg.Backend, log)
	if err != nil {
		return err
	}
	return b.Run(ctx)
}
