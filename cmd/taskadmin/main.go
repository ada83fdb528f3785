package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"taskadmin/config"
	"taskadmin/docstore"
	"taskadmin/engine"
	"taskadmin/logging"
	"taskadmin/messaging"
	"taskadmin/metrics"
	"taskadmin/store"
	"taskadmin/viewcache"
	"taskadmin/www"
)

var Version = "dev"

const viewCacheTTL = 24 * time.Hour

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "taskadmin.yaml", "path to config file")
	envFile := flag.String("env", ".env", "optional dotenv file with TASKADMIN_* overrides")
	flag.Parse()

	if *showVersion {
		fmt.Println("taskadmin", Version)
		return
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(&cfg.Log)
	log := logging.Component(logger, "main")

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Infof("database open (%s)", cfg.Database.Driver)

	m := metrics.New()

	// Document store
	var docs docstore.Store
	switch cfg.DocStore.Backend {
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Mongo.Timeout)
		ms, err := docstore.ConnectMongo(ctx, &cfg.Mongo, cfg.DocStore.PollInterval, logging.Component(logger, "docstore"))
		cancel()
		if err != nil {
			log.Fatalf("connect mongo: %v", err)
		}
		docs = ms
		log.Infof("document store: mongo (%s)", cfg.Mongo.Database)
	default:
		docs = docstore.NewSQLStore(db, cfg.DocStore.PollInterval, logging.Component(logger, "docstore"))
		log.Infof("document store: sql")
	}
	defer docs.Close()

	// Redis view cache
	var cache engine.ViewCache
	if cfg.Redis.Address != "" {
		rc := viewcache.New(viewcache.NewRedisClient(&cfg.Redis), cfg.Redis.KeyPrefix, viewCacheTTL)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rc.Ping(ctx); err != nil {
			log.Warnf("redis not available (%v), running without view cache", err)
			rc.Close()
		} else {
			log.Infof("redis connected (%s)", cfg.Redis.Address)
			cache = rc
			defer rc.Close()
		}
		cancel()
	}

	// Messaging client
	msgClient := messaging.NewClient(&cfg.Messaging, logging.Component(logger, "messaging"))
	if err := msgClient.Connect(); err != nil {
		log.Warnf("messaging connect failed (%v), events stay in the outbox", err)
	} else if msgClient.Backend() != "none" {
		log.Infof("messaging connected (%s)", msgClient.Backend())
	}
	defer msgClient.Close()

	// Engine
	eng := engine.New(engine.Config{
		AppConfig: cfg,
		Docs:      docs,
		Journal:   db,
		Cache:     cache,
		Metrics:   m,
		Log:       logging.Component(logger, "engine"),
	})
	if err := eng.Start(context.Background()); err != nil {
		log.Fatalf("engine start: %v", err)
	}
	defer eng.Stop()

	// Outbox drainer
	if cfg.Messaging.Backend != "none" {
		drainer := messaging.NewOutboxDrainer(db, msgClient, &cfg.Messaging, m, logging.Component(logger, "outbox"))
		drainer.Start()
		defer drainer.Stop()
	}

	// Web server
	handler, stopWeb := www.NewRouter(www.Deps{
		Engine:   eng,
		Accounts: db,
		Audit:    db,
		Metrics:  m,
		Health: map[string]func() bool{
			"messaging": msgClient.IsConnected,
			"cache":     func() bool { return cache != nil },
		},
		Log: logging.Component(logger, "www"),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Infof("taskadmin %s ready", Version)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down...")
	stopWeb()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("web shutdown: %v", err)
	}

	log.Info("stopped")
}
