package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"marketplace-api/internal/config"
	"marketplace-api/internal/db"
	"marketplace-api/internal/logger"
	"marketplace-api/internal/router"
)

func main() {
	cfg := config.LoadConfig()

	log := logger.InitLogger()
	log.Info().Msg("Uygulama başlıyor")

	database := db.InitDB(cfg.DBUrl)
	defer database.Close()

	db.RunMigrations(database)

	r := router.SetupRouter(database, cfg, log)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info().Msgf("Sunucu %s portunda çalışıyor", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Sunucu hatası")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Info().Msg("Kapatma sinyali alındı...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown başarısız")
	}

	log.Info().Msg("Sunucu kapatıldı")
}
