package main

import (
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"pacotes-bot/internal/bot"
	"pacotes-bot/internal/config"
	"pacotes-bot/internal/database"
	"pacotes-bot/internal/metrics"
	"pacotes-bot/internal/notify"
	"pacotes-bot/internal/packages"
	"pacotes-bot/internal/sheets"
)

// app holds the wired components shared by every command.
type app struct {
	store   *packages.Store
	console *bot.Bot
	db      *gorm.DB
	redis   *redis.Client
}

// buildApp connects the optional backends and builds the store. With
// withSideEffects false (read-only commands) the audit mirror and the
// Telegram alerts are left out.
func buildApp(cfg *config.Config, withSideEffects bool) (*app, error) {
	a := &app{}
	var store *packages.Store

	collector := metrics.Collector{Active: func() int { return store.Stats().Active }}
	recorders := sheets.Recorders{collector}
	observers := packages.Observers{collector}

	if withSideEffects && cfg.DatabaseEnabled() {
		db, err := database.ConnectPostgres(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Audit database unavailable, continuing without it")
		} else {
			a.db = db
			audit := database.NewAuditLog(db)
			recorders = append(recorders, audit)
			observers = append(observers, audit)
		}
	}

	if withSideEffects && cfg.TelegramEnabled() {
		var dedup notify.Deduper
		if cfg.RedisEnabled() {
			rdb, err := database.ConnectRedis(cfg)
			if err != nil {
				log.Warn().Err(err).Msg("Redis unavailable, de-duplicating alerts in memory")
			} else {
				a.redis = rdb
				dedup = notify.RedisDeduper{Redis: rdb}
			}
		}

		console, err := bot.NewBot(cfg.BotToken, nil, cfg.AdminChatID)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.console = console
		observers = append(observers, notify.NewNotifier(console.Instance, cfg.AdminChatID, dedup, cfg.AlertDedupWindow))
	}

	groupPrices, err := cfg.GroupPrices()
	if err != nil {
		a.Close()
		return nil, err
	}

	client := sheets.NewClient(sheets.Options{
		OrdersURL:   cfg.OrdersEndpoint,
		PaymentsURL: cfg.PaymentsEndpoint,
		Token:       cfg.SheetsToken,
		Timeout:     cfg.SubmitTimeout,
		RatePerSec:  cfg.SubmitRatePerSec,
		Recorder:    recorders,
	})

	store, err = packages.NewStore(packages.StoreConfig{
		Submitter:     client,
		Persister:     packages.NewFileStore(cfg.DataDir),
		Pricer:        packages.StaticPricer{Default: cfg.RenewalPrice, ByGroup: groupPrices},
		Observer:      observers,
		RenewalAmount: cfg.RenewalAmount,
		CountryCode:   cfg.CountryCode,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store
	if a.console != nil {
		a.console.Packages = store
	}
	metrics.PackagesActive.Set(float64(len(store.ListActive(""))))

	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis")
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
