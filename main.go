package main

import (
	"Painty/access"
	"Painty/ai"
	"Painty/bot"
	"Painty/core"
	"Painty/health"
	"Painty/holder"
	"Painty/imaging"
	"Painty/lib/sl"
	"Painty/storage"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	conf := core.MustLoad(*configPath)
	log := setupLogger(conf.Env)
	log.With(
		slog.String("config", *configPath),
		slog.String("env", conf.Env),
		slog.String("bot", conf.Username),
		slog.String("model", conf.Gemini.Model),
		sl.Secret(conf.Gemini.ApiKey),
	).Info("starting painty bot")

	store := setupStorage(conf, log)

	// Root admins always exist as active admin rows, so listings and
	// persisted admin checks see them even before their first message.
	for _, adminID := range conf.RootAdmins {
		if err := store.EnsureAdminUser(context.Background(), adminID); err != nil {
			log.Error("seeding root admin", sl.User(adminID), sl.Err(err))
		}
	}

	policy := access.NewPolicy(conf.RootAdmins, store, log)
	actions := holder.NewActionManager(store, log)
	gemini := ai.NewGemini(conf, log)
	service := imaging.NewService(conf, log, store, gemini)

	tgBot, err := bot.NewTgBot(conf, log, policy, store, actions)
	if err != nil {
		log.Error("creating telegram bot", sl.Err(err))
		return
	}
	tgBot.SetService(service)
	service.SetOutbox(tgBot)

	var healthSrv *health.Server
	if conf.Health.Enabled {
		healthSrv = health.NewServer(conf.Health.Port, store, log)
		go func() {
			if err := healthSrv.Start(); err != nil {
				log.Error("health server stopped with error", sl.Err(err))
			}
		}()
		log.Info("health server started", slog.String("port", conf.Health.Port))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := tgBot.Start(); err != nil {
			log.Error("bot stopped with error", sl.Err(err))
		}
	}()

	log.Info("bot started")

	sig := <-sigChan
	log.Info("received signal, shutting down", slog.String("signal", sig.String()))

	tgBot.Stop()

	if healthSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := healthSrv.Shutdown(ctx); err != nil {
			log.Error("shutting down health server", sl.Err(err))
		}
		cancel()
	}

	if err := service.Close(); err != nil {
		log.Error("closing image service", sl.Err(err))
	}

	log.Info("shutdown complete")
}

func setupStorage(conf *core.Config, log *slog.Logger) storage.Storage {
	switch conf.Storage.Backend {
	case "mongo":
		mongoURI := fmt.Sprintf("mongodb://%s:%s@%s:%s",
			conf.Mongo.User, conf.Mongo.Password,
			conf.Mongo.Host, conf.Mongo.Port)
		store, err := storage.NewMongoStorage(mongoURI, conf.Mongo.Database, log)
		if err != nil {
			log.With(
				slog.String("db", conf.Mongo.Database),
				slog.String("host", conf.Mongo.Host),
			).Error("falling back to memory", sl.Err(err))
			return storage.NewMemoryStorage()
		}
		log.Info("using MongoDB storage")
		return store
	case "memory":
		log.Info("using in-memory storage")
		return storage.NewMemoryStorage()
	default:
		store, err := storage.NewSQLiteStorage(conf.Storage.SQLitePath)
		if err != nil {
			log.With(
				slog.String("path", conf.Storage.SQLitePath),
			).Error("falling back to memory", sl.Err(err))
			return storage.NewMemoryStorage()
		}
		log.Info("using SQLite storage", slog.String("path", conf.Storage.SQLitePath))
		return store
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal, envDev:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
