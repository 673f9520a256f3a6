package main

import (
	"context"
	"log"
	"time"

	"mhdcoin-bot/internal/api"
	"mhdcoin-bot/internal/bot"
	"mhdcoin-bot/internal/cache"
	"mhdcoin-bot/internal/config"
	"mhdcoin-bot/internal/database"
	"mhdcoin-bot/internal/engine"
	"mhdcoin-bot/internal/ledger"
	"mhdcoin-bot/internal/logger"
	"mhdcoin-bot/internal/worker"
)

func main() {
	cfg := config.LoadConfig()

	logg, err := logger.NewSugar(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Could not build logger: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	db, err := database.ConnectPostgres(cfg)
	if err != nil {
		logg.Fatalw("could not connect to database", "error", err)
	}
	logg.Info("connected to postgres")

	rdb, err := database.ConnectRedis(cfg)
	if err != nil {
		logg.Fatalw("could not connect to redis", "error", err)
	}
	logg.Info("connected to redis")

	store := ledger.New(db)
	lb := cache.NewLeaderboard(rdb, cfg.LeaderboardCacheTTL)

	eng := engine.New(store, lb, engine.Policy{
		Cooldown:         time.Duration(cfg.CooldownSeconds) * time.Second,
		TapReward:        cfg.TapReward,
		ReferralBonus:    cfg.ReferralBonus,
		LeaderboardLimit: cfg.LeaderboardLimit,
	}, logg)

	reporter := worker.NewReporter(store, lb, cfg.LeaderboardLimit, cfg.StatsInterval, logg)
	go reporter.Start(context.Background())

	srv := api.NewServer(eng, logg)
	go func() {
		logg.Infow("admin api listening", "addr", cfg.AdminAddr)
		if err := srv.Router(cfg.AdminAllowedCIDRs).Run(cfg.AdminAddr); err != nil {
			logg.Fatalw("admin api server error", "error", err)
		}
	}()

	tgBot, err := bot.NewBot(cfg.BotToken, eng, logg)
	if err != nil {
		logg.Fatalw("could not create bot", "error", err)
	}

	logg.Info("bot started")
	tgBot.Start()
}
