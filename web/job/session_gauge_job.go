package job

import (
	"context"
	"time"

	"github.com/memberpanel/memberpanel/logger"
	"github.com/memberpanel/memberpanel/util/metrics"
)

// SessionCounter counts the live sessions of a session store.
type SessionCounter interface {
	Count(ctx context.Context) (int, error)
}

// SessionGaugeJob publishes the number of live sessions to the active_sessions gauge.
type SessionGaugeJob struct {
	store SessionCounter
}

func NewSessionGaugeJob(store SessionCounter) *SessionGaugeJob {
	return &SessionGaugeJob{store: store}
}

func (j *SessionGaugeJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := j.store.Count(ctx)
	if err != nil {
		logger.Warning("session gauge job err:", err)
		return
	}
	metrics.ActiveSessions.Set(float64(n))
}
