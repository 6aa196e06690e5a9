package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yavzali/catalogwatch/internal/model"
	"github.com/yavzali/catalogwatch/internal/monitoring"
	"github.com/yavzali/catalogwatch/internal/queue"
	"github.com/yavzali/catalogwatch/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review API server",
	Long:  "Serves the HTTP API used by review tooling: queue listing and resolution, pattern and price event inspection, and status.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(st),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()

		zap.L().Info("starting review API server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newRouter(st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	svc := queue.NewService(st)
	collector := monitoring.NewCollector(st)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			snap, err := collector.Collect(req.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, snap)
		})

		r.Get("/queue", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			status := q.Get("status")
			if status == "" {
				status = string(model.QueueStatusPending)
			}
			items, err := st.ListQueueItems(req.Context(), store.QueueFilter{
				Status:     model.QueueStatus(status),
				ReviewType: model.ReviewType(q.Get("type")),
				Priority:   model.Priority(q.Get("priority")),
				Retailer:   q.Get("retailer"),
				Limit:      intParam(q.Get("limit"), 50),
				Offset:     intParam(q.Get("offset"), 0),
			})
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": items})
		})

		r.Post("/queue/{id}/resolve", func(w http.ResponseWriter, req *http.Request) {
			id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, eris.New("invalid queue item id"))
				return
			}
			var body struct {
				Decision string `json:"decision"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
				return
			}
			item, followUps, err := svc.ResolveItem(req.Context(), id, model.Decision(body.Decision))
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"item":       item,
				"follow_ups": followUps,
			})
		})

		r.Get("/patterns", func(w http.ResponseWriter, req *http.Request) {
			patterns, err := st.ListPatterns(req.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"patterns": patterns})
		})

		r.Get("/prices", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			events, err := st.ListPriceEvents(req.Context(), q.Get("all") != "true", intParam(q.Get("limit"), 50))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"events": events})
		})

		r.Post("/prices/{id}/processed", func(w http.ResponseWriter, req *http.Request) {
			id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, eris.New("invalid price event id"))
				return
			}
			if err := st.MarkPriceEventProcessed(req.Context(), id); err != nil {
				writeError(w, http.StatusUnprocessableEntity, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
		})

		r.Get("/products", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			products, err := st.ListProducts(req.Context(), q.Get("retailer"),
				intParam(q.Get("limit"), 50), intParam(q.Get("offset"), 0))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"products": products})
		})

		r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
			run, err := st.GetScanRun(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if run == nil {
				writeError(w, http.StatusNotFound, eris.New("run not found"))
				return
			}
			writeJSON(w, http.StatusOK, run)
		})
	})

	return r
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
