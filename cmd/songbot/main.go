package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/exec"

	"github.com/joho/godotenv"

	"github.com/m3rciful/songbot/core/bootstrap"
	corecmd "github.com/m3rciful/songbot/core/cmd"
	coredatabase "github.com/m3rciful/songbot/core/database"
	"github.com/m3rciful/songbot/core/logger"
	"github.com/m3rciful/songbot/internal/bot"
	"github.com/m3rciful/songbot/internal/config"
	"github.com/m3rciful/songbot/internal/journal"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on the process environment")
	}

	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return config.Load(path)
		},
		Bootstrap: func(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			cfg, ok := carrier.(*config.Config)
			if !ok {
				return nil, fmt.Errorf("unexpected config type %T", carrier)
			}
			return bootstrapApp(cfg)
		},
	})
	if err != nil {
		log.Printf("songbot: %v", err)
		os.Exit(1)
	}
}

func bootstrapApp(cfg *config.Config) (*bot.App, error) {
	var db *coredatabase.Config
	if cfg.Journal.Driver == journal.DriverPostgres {
		db = &cfg.Database
	}
	res, err := bootstrap.Run(bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: db,
	})
	if err != nil {
		return nil, err
	}

	checkBinary(binaryOr(cfg.Download.YTDLPBinary, "yt-dlp"))
	checkBinary("ffmpeg")

	return bot.New(context.Background(), cfg, res.DB)
}

// checkBinary warns when a tool the fetcher shells out to is not on PATH.
func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		logger.SVCDownload.Warn("binary not found",
			slog.String("event", "lookpath"),
			slog.String("binary", name),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.SVCDownload.Info("binary found",
		slog.String("event", "lookpath"),
		slog.String("binary", name),
		slog.String("path", path),
	)
}

func binaryOr(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}
