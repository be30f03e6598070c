package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/r14dd/matchsentinel/internal/config"
	"github.com/r14dd/matchsentinel/internal/consumer"
	"github.com/r14dd/matchsentinel/internal/database"
	"github.com/r14dd/matchsentinel/internal/event"
	"github.com/r14dd/matchsentinel/internal/logger"
	"github.com/r14dd/matchsentinel/internal/reporting"
	"github.com/r14dd/matchsentinel/internal/repository"
	"github.com/r14dd/matchsentinel/internal/statsync"
)

const (
	createdQueue      = "reporting.transaction.created"
	flaggedQueue      = "reporting.transaction.flagged"
	caseQueue         = "reporting.case.created"
	notificationQueue = "reporting.notification.sent"

	gaugeRefreshInterval = 30 * time.Second
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	db, err := database.New(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	sqlDB, _ := db.DB.DB()
	defer sqlDB.Close()

	stats := repository.NewDailyStatRepository(db.DB, log)
	ledger := repository.NewProcessedEventRepository(db.DB, log)

	svc := reporting.New(db.DB, stats, ledger, log)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go serveMetrics(cfg.Metrics.Addr, log)

	// Keep the exported daily counter gauges in step with the table.
	go statsync.Run(ctx, stats, gaugeRefreshInterval, log)

	rmqConsumer, err := consumer.New(cfg.Rabbit, log,
		consumer.Binding{
			Exchange:   event.TransactionExchange,
			RoutingKey: event.TransactionCreatedKey,
			Queue:      createdQueue,
			Handler:    svc.HandleTransactionCreated,
		},
		consumer.Binding{
			Exchange:   event.RuleEngineExchange,
			RoutingKey: event.TransactionFlaggedKey,
			Queue:      flaggedQueue,
			Handler:    svc.HandleTransactionFlagged,
		},
		consumer.Binding{
			Exchange:   event.CaseExchange,
			RoutingKey: event.CaseCreatedKey,
			Queue:      caseQueue,
			Handler:    svc.HandleCaseCreated,
		},
		consumer.Binding{
			Exchange:   event.NotificationExchange,
			RoutingKey: event.NotificationSentKey,
			Queue:      notificationQueue,
			Handler:    svc.HandleNotificationSent,
		},
	)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize RabbitMQ consumer")
	}
	defer rmqConsumer.Close()

	if err := rmqConsumer.Start(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Fatal("consumer stopped unexpectedly")
	}

	log.Info("graceful shutdown complete")
}

func serveMetrics(addr string, log *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("metrics server stopped")
	}
}
