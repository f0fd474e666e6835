// Package main wires aimux's gateway core to an HTTP listener.
package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jeffersonwarrior/aimux-sub001/api/handlers"
	"github.com/jeffersonwarrior/aimux-sub001/config"
	"github.com/jeffersonwarrior/aimux-sub001/gateway/adapter"
	"github.com/jeffersonwarrior/aimux-sub001/gateway/core"
	"github.com/jeffersonwarrior/aimux-sub001/internal/metrics"
	"github.com/jeffersonwarrior/aimux-sub001/internal/server"
	"github.com/jeffersonwarrior/aimux-sub001/internal/telemetry"
	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// =============================================================================
// 🖥️ Server — the aimux composition root
// =============================================================================

// Server owns every long-lived component the gateway needs: the routing
// core, its HTTP and metrics listeners, and the hot-reload manager that
// keeps the core's provider set in sync with the on-disk config.
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	otel       *telemetry.Providers

	core *core.GatewayCore

	httpManager    *server.Manager
	metricsManager *server.Manager

	messagesHandler *handlers.MessagesHandler
	controlHandler  *handlers.ControlHandler
	healthHandler   *handlers.HealthHandler

	metricsCollector *metrics.Collector

	hotReloadManager *config.HotReloadManager
	configAPIHandler *config.ConfigAPIHandler

	wg sync.WaitGroup
}

// NewServer builds a Server bound to cfg, ready for Start.
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		otel:       otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start brings up every component in dependency order: metrics collector,
// gateway core, handlers, hot-reload manager, then the HTTP and metrics
// listeners.
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("aimux", s.logger)

	if err := s.initCore(); err != nil {
		return fmt.Errorf("failed to init gateway core: %w", err)
	}

	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	if err := s.initHotReloadManager(); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
		zap.Int("providers", len(s.cfg.Providers)),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// buildAdapterRegistry registers every adapter implementation this build
// knows how to speak, shared across all descriptors of that kind.
func buildAdapterRegistry(logger *zap.Logger) *adapter.Registry {
	registry := adapter.NewRegistry()

	openAILike := adapter.NewOpenAILikeAdapter(logger)
	registry.Register(types.KindOpenAILike, openAILike)
	// Cerebras and Zai both speak an OpenAI-compatible chat-completions wire
	// format, so they share the OpenAI-like adapter rather than needing one
	// of their own.
	registry.Register(types.KindCerebras, openAILike)
	registry.Register(types.KindZai, openAILike)

	registry.Register(types.KindAnthropicLike, adapter.NewAnthropicLikeAdapter(logger))
	registry.Register(types.KindMinimax, adapter.NewMiniMaxAdapter(logger))
	registry.Register(types.KindSynthetic, adapter.NewSyntheticAdapter())

	return registry
}

// initCore builds the GatewayCore and its adapter registry.
func (s *Server) initCore() error {
	registry := buildAdapterRegistry(s.logger)

	gc, err := core.New(s.cfg, registry, s.metricsCollector, s.logger)
	if err != nil {
		return err
	}
	s.core = gc
	return nil
}

// initHandlers wires the gateway core into every HTTP handler.
func (s *Server) initHandlers() error {
	s.messagesHandler = handlers.NewMessagesHandler(s.core, s.logger)
	s.controlHandler = handlers.NewControlHandler(s.core, s.logger)
	s.healthHandler = handlers.NewHealthHandler(s.logger)

	for _, p := range s.cfg.Providers {
		s.healthHandler.RegisterCheck(handlers.NewProviderHealthCheck(p.ID, s.core.HealthSupervisor()))
	}

	s.logger.Info("Handlers initialized", zap.Int("provider_checks", len(s.cfg.Providers)))
	return nil
}

// initHotReloadManager starts watching the config file (if any) and applies
// every reload straight onto the gateway core's live descriptor set.
func (s *Server) initHotReloadManager() error {
	opts := []config.HotReloadOption{
		config.WithHotReloadLogger(s.logger),
	}

	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}

	s.hotReloadManager = config.NewHotReloadManager(s.cfg, opts...)

	s.hotReloadManager.OnChange(func(change config.ConfigChange) {
		s.logger.Info("Configuration changed",
			zap.String("path", change.Path),
			zap.String("source", change.Source),
			zap.Bool("requires_restart", change.RequiresRestart),
		)
	})

	s.hotReloadManager.OnReload(func(oldConfig, newConfig *config.Config) {
		s.logger.Info("Configuration reloaded")
		s.cfg = newConfig
		s.core.ReloadDescriptors(descriptorsOf(newConfig))
	})

	ctx := context.Background()
	if err := s.hotReloadManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hot reload manager: %w", err)
	}

	s.configAPIHandler = config.NewConfigAPIHandler(s.hotReloadManager)

	return nil
}

// descriptorsOf resolves every configured provider into its runtime descriptor.
func descriptorsOf(cfg *config.Config) []types.ProviderDescriptor {
	descriptors := make([]types.ProviderDescriptor, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		descriptors = append(descriptors, p.Descriptor())
	}
	return descriptors
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("/anthropic/v1/messages", s.messagesHandler.HandleMessages)
	mux.HandleFunc("/anthropic/v1/models", s.messagesHandler.HandleModels)

	mux.HandleFunc("/providers", s.dispatchProviders)
	mux.HandleFunc("/providers/", s.dispatchProviderByID)
	mux.HandleFunc("/test", s.controlHandler.HandleTest)

	if s.configAPIHandler != nil {
		s.configAPIHandler.RegisterRoutes(mux)
		s.logger.Info("Configuration API registered")
	}

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimitCtx := context.Background()
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(nil),
		RateLimiter(rateLimitCtx, 50, 100),
		JWTAuth(s.cfg.Auth, skipAuthPaths, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     120 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// dispatchProviders routes /providers by method: GET lists, POST creates.
func (s *Server) dispatchProviders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.controlHandler.HandleList(w, r)
	case http.MethodPost:
		s.controlHandler.HandleCreate(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// dispatchProviderByID routes /providers/{id} by method.
func (s *Server) dispatchProviderByID(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.controlHandler.HandleGet(w, r)
	case http.MethodPut:
		s.controlHandler.HandleUpdate(w, r)
	case http.MethodDelete:
		s.controlHandler.HandleDelete(w, r)
	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown blocks until the HTTP manager observes a shutdown signal,
// then runs Shutdown.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops the hot-reload manager, then the HTTP and metrics
// listeners, then the telemetry providers.
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	if s.hotReloadManager != nil {
		if err := s.hotReloadManager.Stop(); err != nil {
			s.logger.Error("Hot reload manager shutdown error", zap.Error(err))
		}
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
