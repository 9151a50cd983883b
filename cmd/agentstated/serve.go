package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstate/agentstate/pkg/engine"
	"github.com/agentstate/agentstate/pkg/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run agentstated as a long-lived process with a health endpoint",
	Long: `serve opens the engine against --data-dir and keeps it running,
exposing a liveness/readiness endpoint for orchestrators. It does not
itself speak any agent-facing wire protocol; embed pkg/engine directly
in a process that does, and use this command for a data directory you
want durable in the background (recovery and the TTL sweeper)
without writing your own main.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("health-addr")

		e, err := engine.Open(loadConfig(cmd))
		if err != nil {
			return fmt.Errorf("opening engine: %w", err)
		}
		defer e.Close()

		srv := &http.Server{
			Addr:         addr,
			Handler:      healthHandler(e),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Logger.Info().Str("addr", addr).Msg("agentstated: health endpoint listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Logger.Info().Msg("agentstated: shutting down")
		case err := <-errCh:
			log.Logger.Error().Err(err).Msg("agentstated: health server error")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

// healthHandler reports liveness at /healthz: up as long as the
// process is running, degraded (503) once the engine has flipped into
// fail-stop mode after a persistent storage failure.
func healthHandler(e *engine.Engine) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		status := "ok"
		code := http.StatusOK
		if e.Degraded() {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": status,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})
	return mux
}

func init() {
	serveCmd.Flags().String("health-addr", "127.0.0.1:8090", "Address the health endpoint listens on")
}
