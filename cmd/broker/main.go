package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice-broker-go/internal/accounts"
	"voice-broker-go/internal/broker"
	"voice-broker-go/internal/config"
	"voice-broker-go/internal/database"
	"voice-broker-go/internal/intent"
	"voice-broker-go/internal/ledger"
	"voice-broker-go/internal/llm"
	"voice-broker-go/internal/logger"
	"voice-broker-go/internal/market"
	"voice-broker-go/internal/realtime"
	"voice-broker-go/internal/recommend"
	"voice-broker-go/internal/schedule"
	"voice-broker-go/internal/server"
	"voice-broker-go/internal/telephony"
	"voice-broker-go/internal/transcript"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database, cfg.Broker, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The broker runs without a model when none is configured; every model call has a fallback.
	model, err := llm.NewClient(ctx, cfg.LLM, log)
	if err != nil {
		log.Warn("Language model disabled, using rule-based fallbacks", zap.Error(err))
		model = nil
	}

	quotes := market.NewProviderFromConfig(cfg.Market, log)
	summarizer := market.NewSummarizer(quotes, cfg.Market.NewsFeeds, cfg.Market.NewsLimit, cfg.Market.NewsTTL, log)
	hub := realtime.NewHub(log)

	users := accounts.NewStore(db, decimal.NewFromFloat(cfg.Broker.StartingCash), decimal.NewFromFloat(cfg.Broker.DemoCash), log)
	calls := transcript.NewStore(db)
	book := ledger.NewLedger(db, quotes, hub, log)

	orchestrator := broker.NewOrchestrator(broker.Dependencies{
		Users:       users,
		Transcripts: calls,
		Trader:      book,
		Quotes:      quotes,
		Market:      summarizer,
		Recommender: recommend.NewEngine(model, quotes, cfg.Broker.Name, log),
		Resolver:    intent.NewResolver(model, cfg.Intent.Mode, log),
		LLM:         model,
	}, cfg.Broker, log)

	speech := telephony.NewSynthesizer(cfg.ElevenLabs, telephony.NewClipStore(cfg.ElevenLabs.ClipTTL), log)
	if !speech.Enabled() {
		log.Warn("ElevenLabs API key not configured, replies use Twilio voices")
	}

	schedules := schedule.NewStore(db)
	deps := server.Dependencies{
		Accounts:  users,
		Calls:     calls,
		Schedules: schedules,
		Broker:    orchestrator,
		Ledger:    book,
		Quotes:    quotes,
		Market:    summarizer,
		Voice:     telephony.NewVoice(cfg.Server.PublicURL, cfg.Broker.Name, cfg.Twilio, speech, log),
		Clips:     speech,
		Realtime:  http.HandlerFunc(hub.ServeWS),
	}
	if dialer, err := telephony.NewDialer(cfg.Twilio, cfg.Server.PublicURL, log); err != nil {
		log.Warn("Outbound calling disabled, scheduled calls will wait", zap.Error(err))
	} else {
		deps.Dialer = dialer
		go schedule.NewRunner(schedules, dialer, calls, cfg.Twilio.SchedulePoll, log).Run(ctx)
	}

	apiServer := server.NewServer(cfg.Server.Port, deps, log)
	apiServer.Start()

	// Wait for shutdown
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	log.Info("Broker has been shut down.")
}
