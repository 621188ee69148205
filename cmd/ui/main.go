// Command ui serves a read-only dashboard API over the broker's ledger.
package main

import (
	"fmt"
	"net/http"
	"os"

	"voice-broker-go/internal/config"
	"voice-broker-go/internal/database"
	"voice-broker-go/internal/logger"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// The dashboard never seeds; it only reads what the broker wrote.
	dbCfg := cfg.Database
	dbCfg.SeedDemoUser = false
	db, err := database.NewDatabase(dbCfg, cfg.Broker, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	addr := fmt.Sprintf(":%d", cfg.Server.UIPort)
	log.Info("Starting dashboard server", zap.String("address", addr))

	if err := http.ListenAndServe(addr, newRouter(NewAPIHandler(log, db))); err != nil {
		log.Fatal("Dashboard server failed", zap.Error(err))
	}
}

func newRouter(h *APIHandler) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", h.StatusHandler).Methods(http.MethodGet)
	api.HandleFunc("/trades", h.TradesHandler).Methods(http.MethodGet)
	api.HandleFunc("/statistics", h.StatisticsHandler).Methods(http.MethodGet)
	return r
}
