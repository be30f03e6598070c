package statsync

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/r14dd/matchsentinel/internal/metrics"
	"github.com/r14dd/matchsentinel/internal/model"
	"github.com/r14dd/matchsentinel/internal/repository"
)

const refreshTimeout = 10 * time.Second

// Run periodically refreshes the exported gauges for today's counters
// from the daily-stats table.
func Run(
	ctx context.Context,
	stats *repository.DailyStatRepository,
	interval time.Duration,
	log *logrus.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run initial refresh
	refresh(ctx, stats, log)

	for {
		select {
		case <-ctx.Done():
			log.Info("stopping stat gauge refresher")
			return
		case <-ticker.C:
			refresh(ctx, stats, log)
		}
	}
}

func refresh(ctx context.Context, stats *repository.DailyStatRepository, log *logrus.Logger) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	today := model.StatDateOf(time.Now())
	stat, err := stats.GetByDate(ctx, today)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No events yet today.
			stat = &model.DailyStat{StatDate: today}
		} else {
			log.WithError(err).Error("failed to load today's stats for gauges")
			return
		}
	}

	metrics.DailyCounters.WithLabelValues(string(repository.CounterTransactions)).Set(float64(stat.TotalTransactions))
	metrics.DailyCounters.WithLabelValues(string(repository.CounterFlagged)).Set(float64(stat.FlaggedTransactions))
	metrics.DailyCounters.WithLabelValues(string(repository.CounterCases)).Set(float64(stat.CasesCreated))
	metrics.DailyCounters.WithLabelValues(string(repository.CounterNotifications)).Set(float64(stat.NotificationsSent))

	log.WithField("stat_date", today).Debug("stat gauges refreshed")
}
