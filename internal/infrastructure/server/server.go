// Package server is the composition root: it wires config, logging,
// metrics, the kernel, the collaborator providers, and the HTTP/WS
// surface into one runnable unit.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/minimind-os/minimind/internal/api/http"
	"github.com/minimind-os/minimind/internal/api/middleware"
	"github.com/minimind-os/minimind/internal/apps"
	"github.com/minimind-os/minimind/internal/domain/service"
	"github.com/minimind-os/minimind/internal/infrastructure/config"
	"github.com/minimind-os/minimind/internal/infrastructure/logging"
	"github.com/minimind-os/minimind/internal/infrastructure/monitoring"
	"github.com/minimind-os/minimind/internal/kernel"
	"github.com/minimind-os/minimind/internal/providers/filesystem"
	"github.com/minimind-os/minimind/internal/providers/parental"
	"github.com/minimind-os/minimind/internal/ws"
)

// Version reported on the landing route.
const Version = "1.0.0"

// Server wraps the HTTP server and its dependencies.
type Server struct {
	router   *gin.Engine
	httpSrv  *http.Server
	kernel   *kernel.Kernel
	registry *service.Registry
	launcher *apps.Launcher
	control  *parental.Control
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics

	cancelTicks context.CancelFunc
}

// New builds the whole machine from configuration.
func New(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing MiniMind OS",
		zap.String("port", cfg.Server.Port),
		zap.String("data_path", cfg.Data.Path),
	)

	metrics := monitoring.NewMetrics()

	k, err := kernel.New(kernel.Config{
		QuantumMS:        cfg.Kernel.QuantumMS,
		TickMS:           cfg.Kernel.TickMS,
		TotalMemoryKB:    cfg.Kernel.TotalMemoryKB,
		ReservedMemoryKB: cfg.Kernel.ReservedMemoryKB,
		MaxProcesses:     cfg.Kernel.MaxProcesses,
		DefaultPriority:  cfg.Kernel.DefaultPriority,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build kernel: %w", err)
	}
	k.WithMetrics(metrics)

	vfs, err := filesystem.NewVFS(cfg.Data.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("build filesystem sandbox: %w", err)
	}

	control := parental.NewControl(vfs, logger)

	registry := service.NewRegistry()
	if err := registry.Register(filesystem.NewProvider(vfs)); err != nil {
		return nil, fmt.Errorf("register filesystem provider: %w", err)
	}
	if err := registry.Register(parental.NewProvider(control)); err != nil {
		return nil, fmt.Errorf("register parental provider: %w", err)
	}

	launcher := apps.NewLauncher(k, control, registry, logger)

	// One simulated minute of screen time per wall minute of kid use.
	usageTicker(k, control, cfg.Kernel.TickMS)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(k, registry, launcher, Version)
	wsHandler := ws.NewHandler(k, logger, metrics)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// Process manager surface
	router.POST("/processes", handlers.SpawnProcess)
	router.GET("/processes", handlers.ListProcesses)
	router.GET("/processes/:pid", handlers.GetProcess)
	router.DELETE("/processes/:pid", handlers.TerminateProcess)
	router.POST("/processes/:pid/block", handlers.BlockProcess)
	router.POST("/processes/:pid/unblock", handlers.UnblockProcess)
	router.POST("/processes/:pid/yield", handlers.YieldProcess)
	router.PUT("/processes/:pid/priority", handlers.SetProcessPriority)
	router.POST("/processes/reap", handlers.ReapProcesses)

	// Memory and scheduler viewers
	router.GET("/memory", handlers.GetMemory)
	router.GET("/memory/map", handlers.GetMemoryMap)
	router.GET("/scheduler/stats", handlers.GetSchedulerStats)
	router.GET("/snapshot", handlers.GetSnapshot)

	// Kid apps
	router.GET("/apps", handlers.ListApps)
	router.POST("/apps/launch", handlers.LaunchApp)
	router.DELETE("/apps/:pid", handlers.CloseApp)

	// Collaborator services
	router.GET("/services", handlers.ListServices)
	router.POST("/services/execute", handlers.ExecuteService)

	// WebSocket viewer stream
	router.GET("/stream", wsHandler.HandleConnection)

	// Metrics
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/metrics/json", func(c *gin.Context) {
		c.JSON(http.StatusOK, metrics.Snapshot())
	})

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		kernel:   k,
		registry: registry,
		launcher: launcher,
		control:  control,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

// Router exposes the gin engine, used by tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Kernel exposes the kernel instance, used by tests.
func (s *Server) Kernel() *kernel.Kernel {
	return s.kernel
}

// Run starts the kernel tick loop and the HTTP server. Blocks until
// the listener fails or Close is called.
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelTicks = cancel
	s.kernel.Start(ctx)

	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close stops the tick loop and drains the HTTP server.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP shutdown failed", zap.Error(err))
		}
	}

	s.kernel.Stop()
	if s.cancelTicks != nil {
		s.cancelTicks()
	}

	s.logger.Sync()
	return nil
}

// usageTicker converts wall-clock kid time into parental usage
// minutes, piggybacking on the kernel tick observer.
func usageTicker(k *kernel.Kernel, control *parental.Control, tickMS int) {
	ticksPerMinute := uint64(60_000 / tickMS)
	if ticksPerMinute == 0 {
		ticksPerMinute = 1
	}
	k.OnTick(func(tick uint64) {
		if tick%ticksPerMinute == 0 {
			control.RecordUsage(1)
		}
	})
}
