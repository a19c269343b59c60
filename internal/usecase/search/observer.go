package search

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event describes one completed search for analytics. It is emitted
// after the page is finalized; observers see results, never shape them.
type Event struct {
	Mode       string
	Status     string
	QueryID    uuid.UUID
	TotalCount int
	Duration   time.Duration
}

// LogObserver emits search events as structured log lines.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver creates an observer writing to the given logger.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

// SearchCompleted implements Observer.
func (o *LogObserver) SearchCompleted(ev Event) {
	o.logger.Info("search_completed",
		zap.String("mode", ev.Mode),
		zap.String("status", ev.Status),
		zap.String("query_id", ev.QueryID.String()),
		zap.Int("total_count", ev.TotalCount),
		zap.Duration("duration", ev.Duration),
	)
}
