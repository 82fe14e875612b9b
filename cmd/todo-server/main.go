package main

import (
	"context"
	"flag"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ruslan-korneev/todo-server/internal/app"
	"github.com/ruslan-korneev/todo-server/internal/config"
	"github.com/ruslan-korneev/todo-server/internal/logger"
	"github.com/ruslan-korneev/todo-server/internal/memcache"
	"github.com/ruslan-korneev/todo-server/internal/search"
	"github.com/ruslan-korneev/todo-server/internal/store"
)

func main() {
	reindex := flag.Bool("reindex", false, "rebuild the search index from the database and exit")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	dataStore := store.NewPostgresStore(db)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(search.NewHybrid(db), meiliClient)

	var roles *memcache.RoleCache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		roles, err = memcache.NewRoleCache(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer roles.Close()
		logger.Info().Msg("role resolution cache enabled")
	}

	var service *app.Service
	if roles != nil {
		service = app.New(cfg, dataStore, searchService, roles)
	} else {
		service = app.New(cfg, dataStore, searchService, nil)
	}

	if err := service.Bootstrap(ctx); err != nil {
		logger.Warn().Err(err).Msg("bootstrap error, will retry on next restart")
	}

	if *reindex {
		if meiliClient == nil {
			logger.Fatal().Msg("reindex requires MEILI_URL to be set")
		}
		service.ReindexAll(ctx)
		logger.Info().Msg("search reindex complete")
		return
	}

	logger.Info().Msg("todo-server ready")
	<-ctx.Done()
	logger.Info().Msg("shutting down")
}
