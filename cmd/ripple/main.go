// Command ripple runs the realtime chat backend: a websocket fan-out core
// with presence, block filtering, an idempotent message pipeline, call
// signaling and an automated assistant participant.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hsg8-commits/ripple/database/connect"
	"github.com/hsg8-commits/ripple/internal/assistant"
	"github.com/hsg8-commits/ripple/internal/cdn"
	"github.com/hsg8-commits/ripple/internal/chat"
	"github.com/hsg8-commits/ripple/internal/config"
	"github.com/hsg8-commits/ripple/internal/metrics"
	"github.com/hsg8-commits/ripple/internal/notify"
	"github.com/hsg8-commits/ripple/internal/repository"
	"github.com/hsg8-commits/ripple/internal/server"
	"github.com/hsg8-commits/ripple/pkg/cache"
	"github.com/hsg8-commits/ripple/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Environment: cfg.AppEnv,
		LogLevel:    cfg.LogLevel,
		ServiceName: cfg.AppName,
	})
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := connect.Postgres(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var kv chat.Cache
	if cfg.RedisHost != "" {
		c, err := cache.New(ctx, cfg.AppName, cache.Options{
			Addr:         cfg.RedisHost + ":" + cfg.RedisPort,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			PoolSize:     cfg.RedisPoolSize,
			MinIdleConns: cfg.RedisMinIdleConns,
			MaxRetries:   cfg.RedisMaxRetries,
		}, log)
		if err != nil {
			return fmt.Errorf("connecting redis: %w", err)
		}
		defer c.Close()
		kv = c
	} else {
		log.Warn("No Redis configured, running without cache")
	}

	var notifier chat.Notifier = notify.Nop{}
	if cfg.AMQPURL != "" {
		n, err := notify.NewAMQPNotifier(cfg.AMQPURL, log)
		if err != nil {
			return fmt.Errorf("connecting broker: %w", err)
		}
		defer n.Close()
		notifier = n
	} else {
		log.Warn("No broker configured, offline notifications disabled")
	}

	users := repository.NewUserRepository(db, log)
	rooms := repository.NewRoomRepository(db, log)
	messages := repository.NewMessageRepository(db, log)
	calls := repository.NewCallRepository(db, log)

	presence := chat.NewPresence(log)
	hub := chat.NewHub(log)
	filter := chat.NewFilter(users, kv, log)
	typing := chat.NewTyping(presence, hub, rooms, filter, log)
	pipeline := chat.NewPipeline(messages, rooms, filter, presence, hub, kv, notifier, cdn.NewResolver(cfg.CDNBaseURL), log)
	signaling := chat.NewSignaling(calls, filter, presence, hub, pipeline, log)
	engine := chat.NewEngine(presence, hub, filter, typing, pipeline, signaling, users, rooms, log)

	if cfg.AssistantUserID != "" {
		responder := assistant.NewOpenAIResponder(cfg.OpenAIAPIKey, cfg.OpenAIModel, log)
		chat.NewAssistantScheduler(ctx, cfg.AssistantUserID, cfg.AssistantDelay, responder, messages, pipeline, log)
		engine.RegisterAssistant(cfg.AssistantUserID)
		log.Info("Assistant enabled", zap.String("user", cfg.AssistantUserID))
	} else {
		log.Warn("No assistant user configured, automated replies disabled")
	}

	janitor := chat.NewJanitor(typing, calls, log)
	janitor.Start()
	defer janitor.Stop()

	app := server.New(":"+cfg.AppPort, engine, log)
	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Run(gctx)
	})
	g.Go(func() error {
		log.Info("Metrics listening", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	log.Info("ripple started",
		zap.String("app_port", cfg.AppPort),
		zap.String("metrics_port", cfg.MetricsPort))
	return g.Wait()
}
