package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camibot/camibot/pkg/bot"
	"github.com/camibot/camibot/pkg/bus"
	"github.com/camibot/camibot/pkg/cart"
	"github.com/camibot/camibot/pkg/catalog"
	"github.com/camibot/camibot/pkg/channels"
	"github.com/camibot/camibot/pkg/config"
	"github.com/camibot/camibot/pkg/fallback"
	"github.com/camibot/camibot/pkg/flow"
	"github.com/camibot/camibot/pkg/gateway"
	"github.com/camibot/camibot/pkg/journal"
	"github.com/camibot/camibot/pkg/logger"
	"github.com/camibot/camibot/pkg/order"
	"github.com/camibot/camibot/pkg/security"
	"github.com/camibot/camibot/pkg/session"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.FileEnabled {
		if err := logger.EnableFileLogging(cfg.Logging.FilePath, cfg.Logging.MaxSizeMB); err != nil {
			logger.WarnCF("main", "File logging disabled", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	logger.InfoC("main", "Starting camibot...")

	store, err := buildStore(cfg.Store)
	if err != nil {
		logger.FatalCF("main", "Session store initialization failed", map[string]interface{}{
			"backend": cfg.Store.Backend,
			"error":   err.Error(),
		})
	}

	msgBus := bus.NewMessageBus()
	blacklist := security.NewBlacklist()
	jnl := journal.NewStore(cfg.Store.JournalDir)

	catalogClient := catalog.NewClient(cfg.Catalog.BaseURL,
		catalog.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Catalog.TimeoutSeconds) * time.Second}))
	orderClient := order.NewClient(cfg.Orders.BaseURL,
		order.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Orders.TimeoutSeconds) * time.Second}))
	aggregator := cart.NewAggregator(store, orderClient, jnl)

	var responder flow.Responder
	if cfg.Fallback.Enabled && cfg.Fallback.APIKey != "" {
		responder = fallback.NewResponder(cfg.Fallback.APIKey, cfg.Fallback.APIBase, cfg.Fallback.Model)
	} else {
		logger.InfoC("main", "Completion fallback disabled, using static replies")
		responder = fallback.Disabled()
	}

	b, err := bot.New(bot.Deps{
		Store:     store,
		Catalog:   catalogClient,
		Cart:      aggregator,
		Bus:       msgBus,
		Fallback:  responder,
		Blacklist: blacklist,
		Options: flow.Options{
			MessageDelay: time.Duration(cfg.Flows.MessageDelayMS) * time.Millisecond,
			OutboxBuffer: cfg.Flows.OutboxBuffer,
		},
	})
	if err != nil {
		logger.FatalCF("main", "Bot initialization failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	manager, err := channels.NewManager(cfg.Channels, msgBus)
	if err != nil {
		logger.FatalCF("main", "Channel initialization failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if len(manager.Enabled()) == 0 {
		logger.WarnC("main", "No channels enabled, only the management API is reachable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := b.Run(ctx); err != nil {
			logger.ErrorCF("main", "Dispatcher stopped", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
	manager.StartAll(ctx)

	gw := gateway.NewServer(cfg.Gateway.APIKey, msgBus, b, blacklist, jnl, manager.Enabled())
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		Handler: gw.Router(),
	}
	go func() {
		logger.InfoCF("main", "Management API listening", map[string]interface{}{
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalCF("main", "Management API failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.InfoC("main", "Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WarnCF("main", "Management API shutdown failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	manager.StopAll(shutdownCtx)

	logger.InfoC("main", "Shutdown complete")
}

func buildStore(cfg config.StoreConfig) (session.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return session.NewMemoryStore(), nil
	case "redis":
		return session.ConnectRedis(cfg.RedisAddr)
	case "postgres":
		return session.ConnectPostgres(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
