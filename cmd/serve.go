package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/label-copilot/internal/model"
	"github.com/sells-group/label-copilot/internal/pipeline"
)

// maxScanBody caps the JSON request body for /v1/scan.
const maxScanBody = 1 << 20

var servePort int

// scanRunner runs one label analysis. *pipeline.Pipeline satisfies it.
type scanRunner interface {
	Run(ctx context.Context, in model.Input) (*model.Result, error)
}

// pathChecker refuses image paths the server may not read. *imagestore.Loader
// satisfies it.
type pathChecker interface {
	Check(path string) error
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the label analysis HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		return startServer(ctx, buildRouter(env.Pipeline, env.Images), resolvePort(servePort, cfg.Server.Port))
	},
}

// scanRequest is the POST /v1/scan body.
type scanRequest struct {
	ImagePath     string `json:"image_path"`
	UserRawHealth string `json:"user_raw_health"`
}

// errorResponse is the body of every non-2xx response. Result carries the
// partial state when a stage aborted.
type errorResponse struct {
	Error  string        `json:"error"`
	Stage  string        `json:"stage,omitempty"`
	Result *model.Result `json:"result,omitempty"`
}

// buildRouter registers the HTTP routes. A nil runner answers scans with 503;
// paths refused by paths are answered with 403 before the pipeline runs.
func buildRouter(runner scanRunner, paths pathChecker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/v1/scan", func(w http.ResponseWriter, r *http.Request) {
		var req scanRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScanBody)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
		if strings.TrimSpace(req.ImagePath) == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "image_path is required"})
			return
		}
		if runner == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "pipeline not configured"})
			return
		}
		if paths != nil {
			if err := paths.Check(req.ImagePath); err != nil {
				zap.L().Warn("scan request refused",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("image_path", req.ImagePath),
					zap.Error(err),
				)
				writeJSON(w, http.StatusForbidden, errorResponse{Error: "image_path is not allowed"})
				return
			}
		}

		result, err := runner.Run(r.Context(), model.Input{
			ImagePath:     req.ImagePath,
			UserRawHealth: req.UserRawHealth,
		})
		if err != nil {
			status, body := scanError(err, result)
			zap.L().Error("scan request failed",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("image_path", req.ImagePath),
				zap.String("stage", body.Stage),
				zap.Error(err),
			)
			writeJSON(w, status, body)
			return
		}

		zap.L().Info("scan request complete",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("run_id", result.RunID),
			zap.Bool("degraded", result.Degraded()),
		)
		writeJSON(w, http.StatusOK, result)
	})

	return r
}

// scanError maps a pipeline error to a status code and body.
func scanError(err error, result *model.Result) (int, errorResponse) {
	var stageErr *pipeline.StageError
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	case errors.As(err, &stageErr):
		return http.StatusBadGateway, errorResponse{Error: stageErr.Err.Error(), Stage: stageErr.Stage, Result: result}
	default:
		return http.StatusInternalServerError, errorResponse{Error: err.Error()}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// resolvePort prefers the --port flag over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler on port until ctx is cancelled, then shuts
// down gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
