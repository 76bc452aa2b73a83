package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/biolit/litmine/internal/condense"
	"github.com/biolit/litmine/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start webhook server for mining requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		backend, err := initBackend()
		if err != nil {
			return err
		}

		proc, err := condense.NewProcessor(backend, engineConfig())
		if err != nil {
			return eris.Wrap(err, "build processor")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		mux := buildMux(ctx, proc, st, engineConfig().Model)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildMux assembles the HTTP routes. A nil processor or store degrades
// gracefully so handlers stay testable in isolation.
func buildMux(ctx context.Context, proc *condense.Processor, st store.Store, model string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /v1/mine", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query   string           `json:"query"`
			Profile string           `json:"profile"`
			Chunks  []condense.Chunk `json:"chunks"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		if req.Query == "" {
			http.Error(w, `{"error":"query is required"}`, http.StatusBadRequest)
			return
		}

		profile := req.Profile
		if profile == "" {
			profile = "mine"
		}

		runID := ""
		if st != nil {
			run, err := st.CreateRun(r.Context(), req.Query, profile, model)
			if err != nil {
				zap.L().Error("create run failed", zap.Error(err))
				http.Error(w, `{"error":"store unavailable"}`, http.StatusInternalServerError)
				return
			}
			runID = run.ID
		}

		items := make([]condense.Item, 0, len(req.Chunks))
		for _, c := range req.Chunks {
			items = append(items, c)
		}

		// Run the engine asynchronously
		go func() {
			if proc == nil {
				return
			}
			result := proc.Process(ctx, items, req.Query)

			if st != nil {
				if err := st.CompleteRun(ctx, runID, result); err != nil {
					zap.L().Error("complete run failed",
						zap.String("run_id", runID),
						zap.Error(err),
					)
				}
			}

			zap.L().Info("webhook mining finished",
				zap.String("run_id", runID),
				zap.String("query", req.Query),
				zap.String("status", string(result.Status)),
				zap.Int("backend_calls", result.Calls),
			)
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "accepted",
			"run_id": runID,
			"query":  req.Query,
		})
	})

	return mux
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
