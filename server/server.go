package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"audiolib/cache"
	"audiolib/config"
	"audiolib/core/auth"
	"audiolib/core/stream"
	"audiolib/logger"
	"audiolib/repository"
	"audiolib/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// HealthCheck checks one dependency for /healthz.
type HealthCheck func(ctx context.Context) error

// APIHandler 处理所有API请求
type APIHandler struct {
	tracks  repository.TrackRepository
	users   repository.UserRepository
	assets  storage.AssetStore
	streams *stream.Service
	tokens  *auth.TokenIssuer
	stats   *cache.StatsCache
	cfg     *config.Config
	checks  map[string]HealthCheck
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	tracks repository.TrackRepository,
	users repository.UserRepository,
	assets storage.AssetStore,
	tokens *auth.TokenIssuer,
	stats *cache.StatsCache,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		tracks:  tracks,
		users:   users,
		assets:  assets,
		streams: stream.NewService(tracks, assets),
		tokens:  tokens,
		stats:   stats,
		cfg:     cfg,
		checks:  make(map[string]HealthCheck),
	}
}

// AddHealthCheck registers a named dependency check. Not safe to call once
// the router is serving.
func (h *APIHandler) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// NewRouter wires every route. gatherer backs /metrics.
func NewRouter(h *APIHandler, gatherer prometheus.Gatherer) *mux.Router {
	router := mux.NewRouter()
	router.Use(recoverMiddleware, corsMiddleware, metricsMiddleware)

	authLimiter := NewIPRateLimiter(rate.Limit(5), 10)
	router.Handle("/api/register", authLimiter.Middleware(http.HandlerFunc(h.RegisterHandler))).Methods(http.MethodPost, http.MethodOptions)
	router.Handle("/api/login", authLimiter.Middleware(http.HandlerFunc(h.LoginHandler))).Methods(http.MethodPost, http.MethodOptions)

	api := router.PathPrefix("/api/audio").Subrouter()
	api.Handle("", http.HandlerFunc(h.ListTracksHandler)).Methods(http.MethodGet)
	api.Handle("", h.AuthMiddleware(http.HandlerFunc(h.UploadTrackHandler))).Methods(http.MethodPost, http.MethodOptions)
	api.Handle("/mine", h.AuthMiddleware(http.HandlerFunc(h.MyTracksHandler))).Methods(http.MethodGet)
	api.Handle("/stream/{id}", h.OptionalAuth(http.HandlerFunc(h.StreamAudioHandler))).Methods(http.MethodGet, http.MethodHead, http.MethodOptions)
	api.Handle("/{id}", h.AuthMiddleware(http.HandlerFunc(h.UpdateTrackHandler))).Methods(http.MethodPut)
	api.Handle("/{id}", h.AuthMiddleware(http.HandlerFunc(h.DeleteTrackHandler))).Methods(http.MethodDelete, http.MethodOptions)

	router.Handle("/api/profile", h.AuthMiddleware(http.HandlerFunc(h.GetProfileHandler))).Methods(http.MethodGet)
	router.Handle("/api/profile", h.AuthMiddleware(http.HandlerFunc(h.UpdateProfileHandler))).Methods(http.MethodPut, http.MethodOptions)

	admin := router.PathPrefix("/api/admin").Subrouter()
	admin.Use(h.AuthMiddleware, h.AdminMiddleware)
	admin.HandleFunc("/stats", h.AdminStatsHandler).Methods(http.MethodGet)
	admin.HandleFunc("/audios", h.AdminTracksHandler).Methods(http.MethodGet)
	admin.HandleFunc("/users", h.AdminUsersHandler).Methods(http.MethodGet)

	router.HandleFunc("/healthz", h.HealthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found")
	})
	return router
}

// Start serves handler on addr until ctx is cancelled, then drains in-flight
// requests for up to drain.
func Start(ctx context.Context, addr string, handler http.Handler, drain time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// no WriteTimeout: audio bodies may take minutes to deliver
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("服务启动", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("正在关闭服务...", logger.Duration("drain", drain))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("服务已停止")
	return nil
}
