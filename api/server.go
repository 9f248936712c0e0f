package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zycxfyh/adaptive-balancer/api/handlers"
	"github.com/zycxfyh/adaptive-balancer/api/middleware"
	"github.com/zycxfyh/adaptive-balancer/api/websocket"
	"github.com/zycxfyh/adaptive-balancer/internal/auth"
	"github.com/zycxfyh/adaptive-balancer/internal/autoscaler"
	"github.com/zycxfyh/adaptive-balancer/internal/balancer"
	"github.com/zycxfyh/adaptive-balancer/internal/events"
	"github.com/zycxfyh/adaptive-balancer/internal/metrics"
	"github.com/zycxfyh/adaptive-balancer/internal/provider"
	"github.com/zycxfyh/adaptive-balancer/pkg/config"
)

// Dependencies collects everything the HTTP surface needs.
type Dependencies struct {
	Balancer   *balancer.LoadBalancer
	Autoscaler *autoscaler.Autoscaler
	Provider   provider.Provider
	Metrics    metrics.Source
	Bus        *events.EventBus
}

type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      config.APIConfig
	authService *auth.Service
	wsHub       *websocket.Hub
	wsBridge    *websocket.EventBridge
	deps        Dependencies
}

func NewServer(cfg *config.Config, deps Dependencies) (*Server, error) {
	if cfg.App.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	authService, err := auth.NewService(auth.Config{
		Secret:        cfg.API.JWTSecret,
		TokenDuration: cfg.API.JWTDuration,
		AdminUser:     cfg.API.AdminUser,
		AdminPassword: cfg.API.AdminPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("auth setup failed: %w", err)
	}

	wsHub := websocket.NewHub(&cfg.WebSocket)

	s := &Server{
		router:      gin.New(),
		config:      cfg.API,
		authService: authService,
		wsHub:       wsHub,
		deps:        deps,
	}

	s.setupMiddleware()
	s.setupRoutes()

	go wsHub.Run()

	if deps.Bus != nil {
		s.wsBridge = websocket.NewEventBridge(wsHub, deps.Bus.SubscribeAll())
		s.wsBridge.Start()
	}

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	s.router.Use(middleware.RequestLogger())
	s.router.Use(middleware.TraceID())
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.deps.Provider, s.deps.Metrics)
	authHandler := handlers.NewAuthHandler(s.authService)
	instanceHandler := handlers.NewInstanceHandler(s.deps.Balancer)
	scalingHandler := handlers.NewScalingHandler(s.deps.Autoscaler)
	proxyHandler := handlers.NewProxyHandler(s.deps.Balancer)

	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/health/live", healthHandler.Live)

	s.router.POST("/auth/login", authHandler.Login)

	s.router.GET("/ws", websocket.ServeWebSocket(s.wsHub))

	// Client traffic goes through the balancer unauthenticated.
	s.router.Any("/proxy/*path", proxyHandler.Forward)

	protected := s.router.Group("/")
	protected.Use(middleware.JWTAuth(s.authService))
	{
		protected.GET("/instances", instanceHandler.List)
		protected.POST("/instances", instanceHandler.Register)
		protected.DELETE("/instances/:id", instanceHandler.Deregister)

		protected.GET("/stats", scalingHandler.Stats)
		protected.POST("/scale", scalingHandler.ManualScale)
		protected.GET("/scale/history", scalingHandler.History)
		protected.GET("/alerts", scalingHandler.Alerts)
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.wsBridge != nil {
		s.wsBridge.Stop()
	}

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
