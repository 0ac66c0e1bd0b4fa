package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"galleryview/internal/config"
	"galleryview/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Day-grouped image gallery with live uploads",
	Long: "gallery serves a browser gallery of uploaded images grouped by day.\n\n" +
		"The viewer (serve) reads listings from an image backend and follows its\n" +
		"push socket. A small reference backend is bundled (backend, migrate).",
	SilenceUsage:       true,
	PersistentPreRunE:  initializeApp,
	PersistentPostRunE: closeApp,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(backendCmd)
	rootCmd.AddCommand(migrateCmd)
}

func initializeApp(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return err
	}
	log, err = logger.New(cfg)
	return err
}

func closeApp(cmd *cobra.Command, args []string) error {
	if log != nil {
		return log.Close()
	}
	return nil
}

// signalContext ends on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
