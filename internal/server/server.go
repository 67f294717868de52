package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/orderlead/internal/config"
	"github.com/smallbiznis/orderlead/internal/leadsync"
	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
	"github.com/smallbiznis/orderlead/internal/observability"
	obsmiddleware "github.com/smallbiznis/orderlead/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/orderlead/internal/observability/metrics"
	obstracing "github.com/smallbiznis/orderlead/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	leadsync.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	leadSvc       domain.Service
	deliveryLog   domain.DeliveryLog
	webhookSecret []byte
	adminToken    string
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	LeadSvc     domain.Service
	DeliveryLog domain.DeliveryLog `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		leadSvc:     p.LeadSvc,
		deliveryLog: p.DeliveryLog,
		adminToken:  p.Cfg.AdminAPIToken,
	}
	if p.Cfg.ShopifyWebhookSecret != "" {
		svc.webhookSecret = []byte(p.Cfg.ShopifyWebhookSecret)
	}

	svc.registerWebhookRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.GET("/", s.Index)
	s.engine.POST("/webhook", s.HandleOrderWebhook)
}

// registerAdminRoutes exposes the delivery log. The group is only mounted
// when an admin token and a database are both configured.
func (s *Server) registerAdminRoutes() {
	if s.adminToken == "" || s.deliveryLog == nil || !s.cfg.DeliveryLogEnabled() {
		return
	}

	admin := s.engine.Group("/admin", s.AdminTokenRequired())
	admin.GET("/deliveries", s.ListDeliveries)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

func (s *Server) Index(c *gin.Context) {
	c.String(http.StatusOK, "Shopify webhook is up and running.")
}
