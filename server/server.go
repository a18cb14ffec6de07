package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"decayfm/config"
	"decayfm/core/decay"
	"decayfm/core/events"
	"decayfm/core/lock"
	"decayfm/core/store"
	"decayfm/core/wavio"
	"decayfm/library"
	"decayfm/logger"
	"decayfm/repository"
	"decayfm/storage"
	"decayfm/waveform"
)

// Start wires every service, serves until an interrupt arrives, then shuts
// down gracefully. It blocks for the lifetime of the process.
func Start(cfg *config.Config) error {
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   cfg.LogCompress,
	})

	if err := ensureDirExists(cfg.AudioDir); err != nil {
		return err
	}

	blobs, err := storage.NewStore(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	meta, err := repository.NewBlobMetadataRepository(ctx, blobs)
	if err != nil {
		return fmt.Errorf("load decay records: %w", err)
	}

	codec := wavio.NewCodec(cfg.SegmentDuration)
	locks := lock.NewManager(time.Duration(cfg.LockTimeout * float64(time.Second)))
	degradingStore := store.NewDegradingStore(cfg.AudioDir, codec, decay.NewEngine(), locks, meta, cfg.DegradationRate)
	waveforms := waveform.NewGenerator(blobs)
	scanner := library.NewScanner(cfg.AudioDir, codec, meta, waveforms)

	if _, err := scanner.Scan(ctx); err != nil {
		return fmt.Errorf("initial library scan: %w", err)
	}

	hub := events.NewHub()
	go hub.Run()
	defer hub.Stop()

	if cfg.WatchLibrary {
		go func() {
			if err := scanner.Watch(ctx); err != nil {
				logger.Error("library watcher stopped", logger.ErrorField(err))
			}
		}()
	}

	apiHandler := NewAPIHandler(degradingStore, meta, waveforms, locks, hub, cfg)

	httpServer := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     NewRouter(apiHandler, cfg.CORSOrigin),
		ReadTimeout: 30 * time.Second,
		// streaming responses can run for minutes
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			logger.String("addr", httpServer.Addr),
			logger.String("audio_dir", cfg.AudioDir),
			logger.Float64("segment_duration", cfg.SegmentDuration),
			logger.Float64("degradation_rate", cfg.DegradationRate),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-stop:
	}

	logger.Info("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// NewRouter mounts every endpoint with the shared middleware chain.
func NewRouter(h *APIHandler, corsOrigin string) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(recoverMiddleware)
	router.Use(accessLogMiddleware)
	router.Use(corsMiddleware(corsOrigin))

	router.HandleFunc("/", h.HealthHandler).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/tracks", h.TracksHandler).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/stream/{filename}", h.StreamHandler).Methods(http.MethodGet, http.MethodHead, http.MethodOptions)
	router.HandleFunc("/stream/{filename}/chunk/{index}", h.ChunkHandler).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/degrade/{filename}", h.DegradeHandler).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/stats/{filename}", h.StatsHandler).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/waveform/{filename}", h.WaveformHandler).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/ws", h.EventsHandler)

	return router
}

func ensureDirExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("creating directory", logger.String("path", path))
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	} else if err != nil {
		return fmt.Errorf("check directory %s: %w", path, err)
	}
	return nil
}

// statusWriter records the response status for the access log while still
// exposing Hijacker and Flusher to handlers that need them (websockets).
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic recovered",
					logger.String("path", r.URL.Path),
					logger.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			// Hijacked connections never write a status.
			return
		}
		logger.Info("request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", sw.status),
			logger.Int64("bytes", sw.bytes),
			logger.Duration("elapsed", time.Since(start)),
			logger.String("remote", r.RemoteAddr),
		)
	})
}

func corsMiddleware(origin string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
