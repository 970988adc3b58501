package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"botweave/internal/app"
	"botweave/internal/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot daemon",
	Long: `Run the daemon: start previously-running bots, fire scheduled
workflows, and listen for platform webhooks and management API calls
on one HTTP port.

Example:
  botweave serve                 # Listen per config (default :8080)
  botweave serve --port 9000     # Override the listen port`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Listen host (overrides config)")
	serveCmd.Flags().Int("port", 0, "Listen port (overrides config)")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(_ *cobra.Command, _ []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Start(context.Background()) }()

	fmt.Printf("botweave daemon listening on port %d\n", a.Port())
	fmt.Println("Press Ctrl+C to stop")

	var runErr error
	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Stop(shutdownCtx); err != nil {
		log.ErrorErr(log.CatAPI, "error during shutdown", err)
		if runErr == nil {
			runErr = err
		}
	}

	if runErr != nil {
		return fmt.Errorf("daemon: %w", runErr)
	}
	fmt.Println("Daemon stopped")
	return nil
}
