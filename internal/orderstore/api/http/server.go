package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	brokermessage "orderboard/internal/orderstore/adapter/broker_message"
	ordercache "orderboard/internal/orderstore/adapter/cache"
	database "orderboard/internal/orderstore/adapter/db"
	"orderboard/internal/orderstore/adapter/memory"
	"orderboard/internal/orderstore/api/http/handle"
	"orderboard/internal/orderstore/api/http/middleware"
	"orderboard/internal/orderstore/app/core"
	"orderboard/internal/orderstore/app/services"
	"orderboard/pkg/cache"
	"orderboard/pkg/config"
	"orderboard/pkg/db"
	"orderboard/pkg/logger"
	"orderboard/pkg/rabbitmq"
)

var ErrServerClosed = errors.New("Server closed")

type Server struct {
	cfg         *config.Config
	storeParams *core.StoreParams
	mylog       logger.Logger
	ctx         context.Context
	appCtx      context.Context

	srv   *http.Server
	db    *db.DB
	repo  core.IOrderRepo
	rdb   *redis.Client
	cache core.IOrderCache
	mb    *brokermessage.Publisher
	mu    sync.Mutex
}

func NewServer(ctx, appCtx context.Context, cfg *config.Config, storeParams *core.StoreParams, mylog logger.Logger) *Server {
	return &Server{
		ctx:         ctx,
		appCtx:      appCtx,
		cfg:         cfg,
		storeParams: storeParams,
		mylog:       mylog,
	}
}

// Run connects the backends, serves HTTP and returns when ctx ends or the listener fails.
func (s *Server) Run() error {
	mylog := s.mylog.Action("server_started")

	if err := s.initializeRepo(); err != nil {
		mylog.Action("db_connection_failed").Error("Failed to open order storage", err)
		return err
	}

	if s.cfg.Redis.Enabled {
		if err := s.initializeCache(); err != nil {
			mylog.Action("cache_connection_failed").Error("Failed to connect to cache", err)
			return err
		}
	}

	if s.cfg.RMQ.Enabled {
		if err := s.initializeRabbitMQ(); err != nil {
			mylog.Action("mb_connection_failed").Error("Failed to connect to message broker", err)
			return err
		}
	}

	orderService := services.NewOrderService(s.repo, s.cache, s.publisher(), core.ServiceParams{
		DefaultLimit:      s.cfg.Sync.PageLimit,
		MaxLimit:          s.cfg.Store.MaxPageLimit,
		TransitionRetries: s.cfg.Store.TransitionRetries,
	}, s.mylog)

	s.mu.Lock()
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.storeParams.Port),
		Handler:           NewRouter(orderService, s.repo, s.cfg.Auth.JWTSecret, s.mylog),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Unlock()

	mylog.WithGroup("details").With(
		"port", s.storeParams.Port,
		"backend", s.storeParams.Backend,
		"cache", s.cfg.Redis.Enabled,
		"broker", s.cfg.RMQ.Enabled,
	).Info("server is running")

	return s.startHTTPServer()
}

// Stop shuts the listener down and closes every backend that was opened.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mylog.Action("graceful_shutdown_started").Info("Shutting down HTTP server...")

	var errs []error
	if s.srv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, core.WaitTime*time.Second)
		defer cancel()

		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.mylog.Action("graceful_shutdown_failed").Error("Failed to shut down HTTP server gracefully", err)
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if s.mb != nil {
		if err := s.mb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mb close: %w", err))
		} else {
			s.mylog.Action("mb_closed").Info("Message broker closed")
		}
	}

	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache close: %w", err))
		} else {
			s.mylog.Action("cache_closed").Info("Cache closed")
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("db close: %w", err))
		} else {
			s.mylog.Action("db_closed").Info("Database closed")
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.mylog.Action("graceful_shutdown_completed").Info("HTTP server shut down gracefully")
	return nil
}

func (s *Server) startHTTPServer() error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		} else {
			errCh <- nil
		}
	}()

	select {
	case <-s.ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) initializeRepo() error {
	if s.storeParams.Backend == "memory" {
		s.repo = memory.NewOrderRepo()
		s.mylog.Action("db_connected").Info("Using in-memory order storage")
		return nil
	}

	if s.storeParams.Migrate {
		if err := database.Migrate(s.cfg.DB.DSN(), s.mylog); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	conn, err := db.Connect(s.appCtx, s.cfg.DB, s.mylog)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db = conn
	s.repo = database.NewOrderRepo(conn.Pool())
	return nil
}

func (s *Server) initializeCache() error {
	rdb, err := cache.Connect(s.appCtx, s.cfg.Redis, s.mylog)
	if err != nil {
		return err
	}
	s.rdb = rdb
	s.cache = ordercache.NewOrderCache(rdb, s.cfg.Store.CacheTTL, s.mylog)
	return nil
}

func (s *Server) initializeRabbitMQ() error {
	mb, err := rabbitmq.Connect(s.cfg.RMQ, s.mylog)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	s.mb = brokermessage.New(mb, s.mylog)
	return nil
}

// publisher keeps a nil *Publisher from turning into a non-nil interface.
func (s *Server) publisher() core.IPublisher {
	if s.mb == nil {
		return nil
	}
	return s.mb
}

// NewRouter builds the API. health may be nil.
func NewRouter(orderService *services.OrderService, health core.IOrderRepo, jwtSecret string, mylog logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(mylog))

	router.GET("/health", func(c *gin.Context) {
		if health != nil {
			if err := health.IsAlive(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	orderHandler := handle.NewOrderHandler(orderService, mylog)

	v1 := router.Group("/v1", middleware.Auth(jwtSecret, time.Now))
	v1.GET("/orders", orderHandler.List)
	v1.POST("/orders", orderHandler.Create)
	v1.GET("/orders/:id", orderHandler.Get)
	v1.GET("/orders/:id/history", orderHandler.History)
	v1.PATCH("/orders/:id/status", orderHandler.UpdateStatus)

	return router
}
