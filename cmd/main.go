package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shenikar/incident_reporting_system/internal/config"
	"github.com/shenikar/incident_reporting_system/internal/gateway"
	"github.com/shenikar/incident_reporting_system/internal/session"
	"github.com/shenikar/incident_reporting_system/pkg/logger"
	"github.com/sirupsen/logrus"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	log := logger.New(cfg.LogLevel)

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Шлюз к бэкенду платформы инцидентов
	client := gateway.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, log)

	// Необязательный вход ответственной роли: без токена клиент только читает
	if cfg.ResponderUsername != "" {
		token, err := client.Login(ctx, cfg.ResponderUsername, cfg.ResponderPassword)
		if err != nil {
			log.WithError(err).Warn("Responder login failed, mutations will be unavailable")
		} else {
			client.SetToken(token.AccessToken)
			log.WithField("role", token.Role).Info("Responder authenticated")
		}
	}

	// Запуск сессии: снапшот плюс живой поток событий
	sess := session.New(client, cfg, log)
	if err := sess.Start(ctx); err != nil {
		// хранилище пустое до следующего перезапуска, лента при этом живет
		log.WithError(err).Error("Initial snapshot fetch failed, feed will still deliver new events")
	}
	log.WithField("api", cfg.APIBaseURL).Info("Incident session started")

	// Периодическая сводка по выборке
	go func() {
		ticker := time.NewTicker(cfg.StatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := sess.ComputeStats()
				log.WithFields(logrus.Fields{
					"total":       stats.Total,
					"verified":    stats.Verified,
					"in_progress": stats.InProgress,
					"resolved":    stats.Resolved,
				}).Info("Incident overview")
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Received shutdown signal, stopping session...")

	sess.Stop()
	log.Info("Session gracefully stopped")
}
