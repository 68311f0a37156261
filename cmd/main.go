package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"betpool/internal/auth"
	"betpool/internal/bot"
	"betpool/internal/config"
	"betpool/internal/handlers"
	"betpool/internal/service"
	"betpool/internal/storage"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Initializing database at: %s", cfg.Storage.DatabasePath)
	store, err := storage.Open(cfg.Storage.DatabasePath, storage.Limits{
		MinBet:        cfg.Betting.MinBet,
		MaxBet:        cfg.Betting.MaxBet,
		WelcomeTokens: cfg.Betting.WelcomeTokens,
		WelcomePoints: cfg.Betting.WelcomePoints,
	})
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	payouts := service.NewPayoutService(store)
	referrals := service.NewReferralService(store, cfg.Referral.BonusPoints)

	tgBot, err := bot.New(cfg, store, payouts, referrals)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	notifier := service.NewNotificationService(tgBot.Telebot(), store, cfg.Telegram.ChannelID)
	tgBot.SetNotificationService(notifier)

	go tgBot.Start()
	defer tgBot.Stop()

	// Background worker: auto-resolve expired predictions
	worker := service.NewMarketWorker(store, payouts, cfg.Worker.ResolveInterval())
	worker.SetNotificationService(notifier)
	if err := worker.Start(); err != nil {
		log.Fatalf("Failed to start market worker: %v", err)
	}
	defer worker.Stop()

	// HTTP API for the Telegram web app
	apiMux := http.NewServeMux()
	handlers.NewAPI(store).Routes(apiMux)

	mux := http.NewServeMux()
	mux.Handle("/api/", auth.Middleware(cfg.Telegram.BotToken, http.StripPrefix("/api", apiMux)))
	mux.Handle("/", http.FileServer(http.Dir("./web")))

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
}
