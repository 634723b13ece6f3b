package commands

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/tagmend/internal/config"
	"github.com/jmylchreest/tagmend/internal/logger"
	"github.com/jmylchreest/tagmend/internal/output"
	"github.com/jmylchreest/tagmend/internal/version"
	"github.com/jmylchreest/tagmend/pkg/repair"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the repair pipeline over HTTP",
	Long: `Start an HTTP server exposing the repair pipeline.

Routes:
  GET  /          greeting page
  GET  /healthz   liveness probe
  POST /repair    repair the request body; query parameters "pattern"
                  and "features" override the configuration

A successful repair returns the XML document. Send
"Accept: application/json" to receive markup and statistics instead.
Unrepairable input yields 422 with the parser diagnostic.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.String("addr", "", "listen address (default 127.0.0.1:8080)")

	_ = viper.BindPFlag("serve.addr", flags.Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Serve.Addr,
		Handler:           newRouter(repair.New(cfg.Repair), cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "version", version.String())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}

const indexPage = `<!DOCTYPE html>
<html>
<head><title>tagmend</title></head>
<body>
<h1>Hello World</h1>
<p>POST markup to <code>/repair</code> to receive strict XML.</p>
</body>
</html>
`

// newRouter builds the HTTP routes around r.
func newRouter(r *repair.Repairer, cfg *config.Config) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	router.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, indexPage)
	})
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"version": version.String(),
		})
	})
	router.Post("/repair", repairHandler(r, cfg))

	return router
}

// requestLogger logs one line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, req)
		logger.InfoContext(req.Context(), "request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(req.Context()),
		)
	})
}

func repairHandler(r *repair.Repairer, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()

		pattern := cfg.Pattern
		if expr := q.Get("pattern"); expr != "" {
			re, err := compilePattern(expr)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			pattern = re
		}

		features := cfg.Features
		if names := q.Get("features"); names != "" {
			fs, err := repair.ParseFeatures(strings.Split(names, ","))
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			features = fs
		}

		body := req.Body
		if cfg.MaxInputSize > 0 {
			body = http.MaxBytesReader(w, req.Body, int64(cfg.MaxInputSize))
		}
		data, err := io.ReadAll(body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, errInputTooLarge)
				return
			}
			writeError(w, http.StatusBadRequest, err)
			return
		}

		res, err := r.ExtractContent(string(data), pattern, features)
		if err != nil {
			var rerr *repair.Error
			if errors.As(err, &rerr) {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
					"error":      err.Error(),
					"diagnostic": diagnosticMap(rerr),
				})
				return
			}
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}

		if strings.Contains(req.Header.Get("Accept"), "application/json") {
			writeJSON(w, http.StatusOK, map[string]any{
				"markup":      res.Markup,
				"stats":       res.Stats,
				"repaired_at": time.Now(),
			})
			return
		}

		doc, err := res.XML()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, doc)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, m map[string]any) {
	data, err := output.EncodeJSON(m, true)
	if err != nil {
		logger.Error("failed to encode response", "error", err)
		data, _ = json.Marshal(map[string]string{"error": "internal error"})
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
