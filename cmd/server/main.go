package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/shopmindai/chatcore/internal/activity"
	"github.com/shopmindai/chatcore/internal/ai"
	"github.com/shopmindai/chatcore/internal/attachments"
	"github.com/shopmindai/chatcore/internal/cache"
	"github.com/shopmindai/chatcore/internal/config"
	"github.com/shopmindai/chatcore/internal/eventbus"
	"github.com/shopmindai/chatcore/internal/metrics"
	"github.com/shopmindai/chatcore/internal/presence"
	"github.com/shopmindai/chatcore/internal/ratelimit"
	"github.com/shopmindai/chatcore/internal/search"
	"github.com/shopmindai/chatcore/internal/session"
	"github.com/shopmindai/chatcore/internal/store"
)

func main() {
	root, ranRunE := newRootCmd()
	if err := root.Execute(); err != nil {
		if *ranRunE {
			os.Exit(1)
		}
		os.Exit(2) // cobra rejected the arguments/flags before RunE ever ran
	}
}

func newRootCmd() (*cobra.Command, *bool) {
	v := viper.New()
	ranRunE := false
	cmd := &cobra.Command{
		Use:          "chatcore",
		Short:        "Real-time messaging core: connections, presence, conversations, search, and AI generation",
		Version:      "0.1.0",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ranRunE = true
			return run(v)
		},
	}

	flags := cmd.Flags()
	flags.String("db-url", "", "SQLite DSN or file path (env DATABASE_URL)")
	flags.Int("port", 3000, "HTTP listen port")
	flags.Bool("debug", false, "enable debug logging")
	flags.String("redis-addr", "", "Redis address for conversation-list/search caching (localhost:6379 if empty)")
	flags.String("kafka-addr", "", "Kafka broker address for activity event export (disabled if empty)")
	flags.Int("context-budget", 5000, "cumulative character budget for AI context assembly")
	flags.Int("max-connections-per-user", 8, "soft cap on live connections per user")
	flags.String("ai-base-url", "", "OpenAI-chat-completions-compatible base URL")

	_ = v.BindPFlags(flags)
	return cmd, &ranRunE
}

func run(v *viper.Viper) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	st, err := store.Open(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	redisAddr := cfg.RedisAddr
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:        redisAddr,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 500 * time.Millisecond,
	})
	defer redisClient.Close()
	cacheManager := cache.New(redisClient, logger)

	activityPub := activity.New(cfg.KafkaAddr, logger)
	defer activityPub.Close()

	presenceReg := presence.New(cfg.MaxConnectionsPerUser, logger)
	bus := eventbus.New(presenceReg, logger)
	searcher := search.New(st.DB())
	attachmentResolver := attachments.New(st)
	limiter := ratelimit.New()

	aiCfg := ai.Config{
		BaseURL:       v.GetString("ai-base-url"),
		APIKey:        cfg.HFAPIKey,
		ContextBudget: cfg.ContextBudget,
		MaxRetries:    3,
	}
	orchestrator := ai.New(aiCfg, st, bus, logger)

	deps := &session.Deps{
		Store:         st,
		Bus:           bus,
		Presence:      presenceReg,
		AI:            orchestrator,
		Attachments:   attachmentResolver,
		Search:        searcher,
		Cache:         cacheManager,
		Activity:      activityPub,
		Limiter:       limiter,
		JWTKey:        cfg.JWTKey,
		ContextBudget: cfg.ContextBudget,
		Log:           logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.GinMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   "chatcore",
			"timestamp": time.Now().Unix(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		if err := st.DB().Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": "database unavailable"})
			return
		}
		if cfg.RedisAddr != "" {
			if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": "redis unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/api/ws", gin.WrapF(session.Upgrader(deps)))

	httpServer := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// One goroutine serves, the other waits for a signal and drives
	// shutdown; errgroup ties their lifetimes together so an early
	// listener failure also unblocks the signal wait.
	g, gctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		logger.Infof("starting HTTP server on port %d", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			logger.Info("shutting down")
		case <-gctx.Done():
			return nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server stopped with error")
		return err
	}

	logger.Info("server stopped")
	return nil
}
