package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prepstream/shipment-relay/internal/config"
	"github.com/prepstream/shipment-relay/internal/http/middleware"
	"github.com/prepstream/shipment-relay/internal/logger"
	"github.com/prepstream/shipment-relay/internal/metrics"
	"github.com/prepstream/shipment-relay/internal/repository"
	"github.com/prepstream/shipment-relay/internal/service/ingest"
	"github.com/prepstream/shipment-relay/internal/service/relay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client) *Server {
	// repos (MySQL)
	merchantsRepo := repository.NewMerchantsRepository(mysqlDB)
	eventsRepo := repository.NewEventsRepository(mysqlDB)
	outboundRepo := repository.NewOutboundRepository(mysqlDB)
	conversationsRepo := repository.NewConversationsRepository(mysqlDB)

	// repos (ClickHouse)
	chEventsRepo := repository.NewCHEventsRepository(clickhouseDB)

	// services
	gate := ingest.New(eventsRepo, logger.L())
	relaySvc := relay.New(mysqlDB, outboundRepo, conversationsRepo)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(merchantsRepo)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		DefaultRPS:     cfg.RateLimit.RPS,
		KeyPrefix:      "rl:merchant:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/webhooks/shipments", shipmentWebhookHandler(gate))
	v1.GET("/shipments/:shipment_id/events", shipmentHistoryHandler(eventsRepo))
	v1.GET("/reports/events", listEventReportsHandler(chEventsRepo))
	v1.POST("/messages", enqueueMessageHandler(relaySvc))
	v1.POST("/conversations/:alias/messages", postConversationMessageHandler(relaySvc))
	v1.GET("/conversations/:alias/messages", listConversationHandler(relaySvc))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
