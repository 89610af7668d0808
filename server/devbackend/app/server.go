package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	commonauth "takahome/common/auth"
	"takahome/common/infra/cache"
	"takahome/common/infra/mq"
	commonlog "takahome/common/log"
	"takahome/server/devbackend/api"
	"takahome/server/devbackend/service"
	"takahome/server/devbackend/store"
)

type Server struct {
	HTTPServer *http.Server
	Handler    http.Handler
	Store      *store.Store
	Hub        *service.Hub
	Redis      *redis.Client
	Publisher  *mq.Publisher
}

func NewServer(cfg Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := store.Load(cfg.FixturesPath)
	if err != nil {
		return nil, fmt.Errorf("load fixtures: %w", err)
	}

	var redisClient *redis.Client
	if cfg.UseRedis {
		redisClient, err = cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	var publisher *mq.Publisher
	if cfg.UseMQ {
		conn, err := mq.NewConnection(cfg.LavinMQURL)
		if err != nil {
			closeRedis(redisClient)
			return nil, fmt.Errorf("initialize lavinmq: %w", err)
		}
		publisher, err = mq.NewPublisher(conn, cfg.Exchange, "takahome-devbackend")
		if err != nil {
			_ = conn.Close()
			closeRedis(redisClient)
			return nil, fmt.Errorf("initialize amqp publisher: %w", err)
		}
	}

	chatSvc := service.NewChatService(st, nil)
	bookingSvc := service.NewBookingService(st, nil)
	if publisher != nil {
		chatSvc.UsePublisher(publisher)
		bookingSvc.UsePublisher(publisher)
	}
	hub := service.NewHub(chatSvc, service.NewTypingTracker(cfg.TypingTTL))
	if redisClient != nil {
		hub.UseRedis(redisClient)
	}
	if err := hub.Start(context.Background()); err != nil {
		if publisher != nil {
			publisher.Close()
		}
		closeRedis(redisClient)
		return nil, fmt.Errorf("start chat hub: %w", err)
	}

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	h := api.NewHandler(st, chatSvc, bookingSvc, hub, commonauth.NewService(cfg.JWTSecret, cfg.JWTTTLMinutes))
	h.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	commonlog.Infof("event=devbackend action=init status=ok port=%s redis=%t mq=%t fixtures=%q", cfg.Port, redisClient != nil, publisher != nil, cfg.FixturesPath)

	return &Server{
		HTTPServer: httpServer,
		Handler:    r,
		Store:      st,
		Hub:        hub,
		Redis:      redisClient,
		Publisher:  publisher,
	}, nil
}

func closeRedis(c *redis.Client) {
	if c != nil {
		_ = c.Close()
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.HTTPServer.Shutdown(ctx)
	if s.Hub != nil {
		s.Hub.Stop()
	}
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	closeRedis(s.Redis)
	return err
}
