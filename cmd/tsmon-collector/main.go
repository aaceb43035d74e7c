package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"tsnetmon/internal/logger"
	"tsnetmon/internal/server"
)

func main() {
	v := viper.New()
	v.SetEnvPrefix("TSMON")
	v.AutomaticEnv()
	v.SetDefault("addr", ":8080")
	v.SetDefault("db_path", "./data/tsnetmon.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	logger.Init(v.GetString("log_level"), v.GetString("log_format"))

	dbPath := v.GetString("db_path")
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("failed to create db dir")
		}
	}

	db, err := server.OpenDB(dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", dbPath).Msg("failed to open db")
	}
	defer db.Close()

	api := server.NewAPI(server.NewSQLiteStore(db))

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Str("db", dbPath).Msg("collector listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Warn().Str("signal", sig.String()).Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
	log.Info().Msg("collector stopped")
}
