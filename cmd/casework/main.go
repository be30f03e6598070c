package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/r14dd/matchsentinel/internal/casework"
	"github.com/r14dd/matchsentinel/internal/config"
	"github.com/r14dd/matchsentinel/internal/consumer"
	"github.com/r14dd/matchsentinel/internal/database"
	"github.com/r14dd/matchsentinel/internal/event"
	"github.com/r14dd/matchsentinel/internal/logger"
	"github.com/r14dd/matchsentinel/internal/publisher"
	"github.com/r14dd/matchsentinel/internal/repository"
)

const flaggedQueue = "casework.transaction.flagged"

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

	cases := repository.NewCaseRepository(db.DB, log)

	pub, err := publisher.New(cfg.Rabbit, log, event.CaseExchange)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize publisher")
	}
	defer pub.Close()

	svc := casework.New(cases, pub, log)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go serveMetrics(cfg.Metrics.Addr, log)

	rmqConsumer, err := consumer.New(cfg.Rabbit, log, consumer.Binding{
		Exchange:   event.RuleEngineExchange,
		RoutingKey: event.TransactionFlaggedKey,
		Queue:      flaggedQueue,
		Handler:    svc.HandleTransactionFlagged,
	})
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
