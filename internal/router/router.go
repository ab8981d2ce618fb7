package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tradedesk/internal/handler"
	"github.com/navid-fn/tradedesk/internal/middleware"
)

type Config struct {
	TradeHandler    *handler.TradeHandler
	SplitHandler    *handler.SplitHandler
	AccountHandler  *handler.AccountHandler
	MemberHandler   *handler.MemberHandler
	GameHandler     *handler.GameHandler
	SettingHandler  *handler.SettingHandler
	PresenceHandler *handler.PresenceHandler

	ActivityHandler    *handler.ActivityHandler
	LotteryHandler     *handler.LotteryHandler
	LoginRecordHandler *handler.LoginRecordHandler

	Tokens      middleware.TokenConfig
	RateLimiter *middleware.RateLimiter
	CORSOrigins []string
	Logger      *logrus.Logger
}

func NewRouter(cfg *Config) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestLogger(cfg.Logger),
		middleware.Metrics(),
	)
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.PresenceHandler != nil {
		router.GET("/ws", cfg.PresenceHandler.Connect)
	}

	// customers open lottery links without an operator token
	public := router.Group("/public")
	if cfg.RateLimiter != nil {
		public.Use(cfg.RateLimiter.Handler())
	}
	registerPublicRoutes(public, cfg.LotteryHandler)

	api := router.Group("/v1")
	api.Use(middleware.Auth(cfg.Tokens))
	if cfg.RateLimiter != nil {
		api.Use(cfg.RateLimiter.Handler())
	}
	registerTradeRoutes(api, cfg.TradeHandler, cfg.SplitHandler)
	registerAccountRoutes(api, cfg.AccountHandler)
	registerMemberRoutes(api, cfg.MemberHandler)
	registerCatalogRoutes(api, cfg.GameHandler, cfg.SettingHandler)
	registerActivityRoutes(api, cfg.ActivityHandler, cfg.LotteryHandler, cfg.LoginRecordHandler)
	if cfg.PresenceHandler != nil {
		api.GET("/online", cfg.PresenceHandler.Online)
	}

	return router
}
