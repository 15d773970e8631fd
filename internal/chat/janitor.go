package chat

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	typingMaxAge = 30 * time.Second
	callMaxAge   = 2 * time.Hour
)

// Janitor periodically clears state that only ever changes on explicit client
// events: typing marks from vanished connections and call legs stuck in a
// non-terminal status after a crashed peer.
type Janitor struct {
	cron   *cron.Cron
	typing *Typing
	calls  CallStore
	log    *zap.Logger
}

// NewJanitor schedules the sweeps. Start must be called to begin.
func NewJanitor(typing *Typing, calls CallStore, log *zap.Logger) *Janitor {
	j := &Janitor{
		cron:   cron.New(),
		typing: typing,
		calls:  calls,
		log:    log.With(zap.String("module", "janitor")),
	}
	j.cron.AddFunc("@every 1m", j.sweep)
	return j
}

// Start begins the schedule in its own goroutine.
func (j *Janitor) Start() { j.cron.Start() }

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) sweep() {
	if n := j.typing.SweepStale(typingMaxAge); n > 0 {
		j.log.Info("cleared stale typing marks", zap.Int("count", n))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := j.calls.FailStale(ctx, time.Now().UTC().Add(-callMaxAge))
	if err != nil {
		j.log.Warn("stale call sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		j.log.Info("failed stale call legs", zap.Int("count", n))
	}
}
