package main

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

	"stacingest/internal"
	"stacingest/internal/devstub"
)

func main() {
	var addr, dir string

	rootCmd := &cobra.Command{
		Use:   "devstub",
		Short: "Run a local stand-in for the ingest service",
		Long: `Serve /api/create-ingest, /api/retrieve-ingest and /api/validate-cog locally.
Records are written under --dir using their repository staging paths.

Example: devstub --addr :8090 --dir ./tmp`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := internal.NewDefaultLogger()
			store, err := devstub.NewLocalStore(dir)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           devstub.NewServer(store, logger).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("[DevStub] listening on %s, writing to %s", addr, dir)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	rootCmd.Flags().StringVar(&addr, "addr", ":8090", "Listen address")
	rootCmd.Flags().StringVar(&dir, "dir", ".", "Directory the staging files are written under")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
