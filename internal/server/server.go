package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apihttp "github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/api/http"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/api/middleware"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/bridge"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/config"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/logging"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/monitoring"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/shared/id"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/tracing"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/tracing/otlp"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/ws"
)

const metricsNamespace = "qantum"

// Server wraps the admin HTTP server and the node's components
type Server struct {
	cfg     *config.Config
	logger  *logging.Logger
	router  *gin.Engine
	http    *http.Server
	metrics *monitoring.Metrics
	tracer  *tracing.Manager
	bridge  *bridge.Bridge
	peer    *ws.PeerHandler
	redis   *redis.Client
}

// NewServer builds every component from cfg. Nothing connects to the peer
// until ConnectPeer.
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	nodeID := cfg.Service.NodeID
	if nodeID == "" {
		nodeID = id.NewNodeID().String()
	}
	logger = logger.ForNode(cfg.Service.Name, nodeID)
	metrics := monitoring.NewMetrics(metricsNamespace)

	exporter, err := otlp.New(cfg.Tracing, logger)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	tracer := tracing.NewManager(tracing.Config{
		ServiceName:      cfg.Service.Name,
		ServiceVersion:   cfg.Service.Version,
		SamplingRate:     cfg.Tracing.SamplingRate,
		MaxBufferedSpans: cfg.Tracing.MaxBufferedSpans,
		ExportInterval:   cfg.Tracing.ExportInterval,
		ExportTimeout:    cfg.Tracing.ExportTimeout,
		Exporter:         exporter,
		Logger:           logger,
		Metrics:          metrics,
	})

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
	}

	queue, err := s.newQueue(nodeID)
	if err != nil {
		_ = tracer.Shutdown(context.Background())
		return nil, err
	}

	bcfg := bridge.ConfigFrom(cfg.Bridge, nodeID)
	bcfg.Queue = queue
	bcfg.Logger = logger
	bcfg.Metrics = metrics
	s.bridge = bridge.New(ws.NewTransport(cfg.Bridge.PeerURL, nil), bcfg)
	s.peer = ws.NewPeerHandler(nodeID, logger)

	s.router = s.newRouter()
	s.http = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("node initialized",
		zap.String("peer_url", cfg.Bridge.PeerURL),
		zap.String("export_protocol", cfg.Tracing.ExportProtocol),
		zap.String("queue_backend", cfg.Bridge.QueueBackend))
	return s, nil
}

func (s *Server) newQueue(nodeID string) (bridge.Queue, error) {
	if s.cfg.Bridge.QueueBackend != config.QueueRedis {
		return bridge.NewMemoryQueue(), nil
	}

	s.redis = redis.NewClient(&redis.Options{
		Addr:     s.cfg.Redis.Addr,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		_ = s.redis.Close()
		return nil, fmt.Errorf("redis offline queue at %s: %w", s.cfg.Redis.Addr, err)
	}
	return bridge.NewRedisQueue(s.redis, s.cfg.Redis.QueueKey+":"+nodeID), nil
}

func (s *Server) newRouter() *gin.Engine {
	if !s.cfg.Logging.Development && gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Traceparent())
	router.Use(middleware.RequestLogger(s.logger))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if s.cfg.Server.RateLimitEnabled {
		router.Use(middleware.RateLimit(middleware.RateLimitFrom(s.cfg.Server)))
	}

	handlers := apihttp.NewHandlers(s.bridge, s.tracer, s.metrics, s.cfg.Service)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// Bridge
	router.GET("/bridge", handlers.BridgeStatus)
	router.POST("/bridge/connect", handlers.Connect)
	router.POST("/bridge/disconnect", handlers.Disconnect)
	router.POST("/messages", handlers.SendMessage)
	router.POST("/broadcast", handlers.Broadcast)

	// Tracing
	router.POST("/traces/export", handlers.ExportTraces)

	// Peer endpoint
	router.GET("/ws", s.peer.HandleConnection)

	return router
}

// Router exposes the HTTP handler
func (s *Server) Router() http.Handler {
	return s.router
}

// Bridge returns the node's bridge
func (s *Server) Bridge() *bridge.Bridge {
	return s.bridge
}

// Tracer returns the node's trace manager
func (s *Server) Tracer() *tracing.Manager {
	return s.tracer
}

// ConnectPeer connects the bridge when a peer URL is configured. Failures
// are retried in the background with backoff.
func (s *Server) ConnectPeer(ctx context.Context) bool {
	if s.cfg.Bridge.PeerURL == "" {
		s.logger.Info("no peer configured, serving as peer endpoint only")
		return false
	}
	return s.bridge.Connect(ctx)
}

// Run serves HTTP until Shutdown
func (s *Server) Run() error {
	s.logger.Info("starting admin server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server, closes the bridge, flushes remaining spans
// and releases the Redis client.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.bridge.Close(); err != nil {
		errs = append(errs, fmt.Errorf("bridge close: %w", err))
	}
	if err := s.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	return errors.Join(errs...)
}
