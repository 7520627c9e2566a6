package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"ewintr.nl/vidfeed/fetch"
	"ewintr.nl/vidfeed/handler"
	"ewintr.nl/vidfeed/notify"
	"ewintr.nl/vidfeed/source"
	"ewintr.nl/vidfeed/sponsorblock"
	"ewintr.nl/vidfeed/storage"
	"github.com/joho/godotenv"
	"golang.org/x/exp/slog"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Error("unable to load env file", err)
		os.Exit(1)
	}

	postgres, err := storage.NewPostgres(storage.PostgresInfo{
		Host:     getParam("POSTGRES_HOST", "localhost"),
		Port:     getParam("POSTGRES_PORT", "5432"),
		User:     getParam("POSTGRES_USER", "vidfeed"),
		Password: getParam("POSTGRES_PASSWORD", "vidfeed"),
		Database: getParam("POSTGRES_DB", "vidfeed"),
	})
	if err != nil {
		logger.Error("unable to connect to postgres", err)
		os.Exit(1)
	}
	videoRepo := storage.NewPostgresVideoRepository(postgres)

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	infoURL := getParam("WEBHOOK_INFO_URL", "")
	errorURL := getParam("WEBHOOK_ERROR_URL", "")
	if getParam("ENVIRONMENT", "") == "production" && infoURL != "" && errorURL != "" {
		notifier = notify.NewWebhook(infoURL, errorURL, logger)
	}

	sbClient := sponsorblock.NewClient(getParam("SPONSORBLOCK_ENDPOINT", sponsorblock.DefaultBaseURL), logger)

	configDir := getParam("CONFIG_DIR", "config")
	subs := fetch.NewFileSubscriptions(configDir)

	registry := source.NewRegistry(
		source.NewYouTube(videoRepo, notifier, logger, getParam("YTDLP_PATH", "yt-dlp"), filepath.Join(configDir, "cookies.txt")),
		source.NewPeerTube(videoRepo, notifier, logger),
		source.NewOdysee(videoRepo, notifier, logger),
	)

	fetcher := fetch.NewFetcher(videoRepo, registry, subs, sbClient, notifier, logger)
	go fetcher.Run(ctx)
	logger.Info("fetch service started")

	port, err := strconv.Atoi(getParam("API_PORT", "8080"))
	if err != nil {
		logger.Error("invalid port", err)
		os.Exit(1)
	}
	go http.ListenAndServe(fmt.Sprintf(":%d", port), handler.NewServer(videoRepo, logger))
	logger.Info("http server started")

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt)
	<-done

	logger.Info("service stopped")
}

func getParam(param, def string) string {
	if val, ok := os.LookupEnv(param); ok {
		return val
	}
	return def
}
