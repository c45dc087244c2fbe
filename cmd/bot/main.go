package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nyawka/phonixshop/internal/adminhttp"
	"github.com/nyawka/phonixshop/internal/bot"
	"github.com/nyawka/phonixshop/internal/config"
	"github.com/nyawka/phonixshop/internal/db"
	"github.com/nyawka/phonixshop/internal/events"
	"github.com/nyawka/phonixshop/internal/fulfillment"
	"github.com/nyawka/phonixshop/internal/ledger"
	"github.com/nyawka/phonixshop/internal/logging"
	"github.com/nyawka/phonixshop/internal/payments"
	"github.com/nyawka/phonixshop/internal/sessions"
)

const shopEventsTopic = "shop_events"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Error("загрузка конфигурации", "error", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	gdb, err := db.Open(ctx, cfg.DatabaseURL, cfg.SQLitePath)
	cancel()
	if err != nil {
		log.Error("инициализация БД", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Error("миграция БД", "error", err)
		os.Exit(1)
	}

	store, err := sessions.NewStore(cfg.SessionsDir, cfg.ArchiveDir)
	if err != nil {
		log.Error("хранилище сессий", "error", err)
		os.Exit(1)
	}

	producer := events.NewProducer(cfg.KafkaBrokers, shopEventsTopic)

	ldg := ledger.New(gdb)
	manager := sessions.NewManager(&sessions.MTProtoClient{APIID: cfg.APIID, APIHash: cfg.APIHash}, store)
	engine := &fulfillment.Engine{Ledger: ldg, Store: store, Manager: manager, Events: producer}
	recon := &payments.Reconciler{
		Ledger:     ldg,
		Crypto:     payments.NewCryptoPayClient(cfg.CryptoBotToken),
		Ton:        payments.NewTonClient(cfg.ToncenterAPIKey),
		Events:     producer,
		TonAddress: cfg.TonAddress,
		StarRate:   cfg.StarRate,
		TonRate:    cfg.TonRate,
		USDTRate:   cfg.USDTRate,
	}

	var states bot.StateStore = bot.NewMemoryStates()
	if cfg.RedisAddr != "" {
		states = bot.NewRedisStates(cfg.RedisAddr)
	}

	b, err := bot.New(cfg, ldg, engine, recon, states, log)
	if err != nil {
		log.Error("инициализация бота", "error", err)
		os.Exit(1)
	}

	e := echo.New()
	e.HideBanner = true
	adminhttp.Register(e, &adminhttp.Deps{
		AdminHandler: &adminhttp.AdminHandler{Ledger: ldg, Engine: engine, Payments: recon},
		Token:        cfg.AdminHTTPToken,
	})

	srv := &http.Server{
		Addr:         cfg.AdminHTTPAddr,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
		}
	}()

	go b.Start()
	log.Info("bot started", "admin_addr", cfg.AdminHTTPAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	b.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := gdb.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Error("db close error", "error", err)
		}
	}

	if err := producer.Close(); err != nil {
		log.Error("kafka close error", "error", err)
	}

	log.Info("shutdown complete")
}
