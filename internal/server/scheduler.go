package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/thinhkhuat/scribe/internal/agent/config"
	"github.com/thinhkhuat/scribe/internal/store"
)

// Scheduler fires recurring research tasks. A Redis SetNX lock keeps
// replicas from double-firing the same schedule.
type Scheduler struct {
	Cfg    *config.Config
	Store  *store.Store
	Rdb    *redis.Client
	Runs   *RunsHandler
	Logger *log.Logger

	interval time.Duration
}

func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.interval = time.Minute
	}
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *Scheduler) tick(ctx context.Context) {
	schedules, err := s.Store.ListSchedules(ctx)
	if err != nil {
		s.Logger.Printf("listing schedules: %v", err)
		return
	}
	for _, sc := range schedules {
		if !isDue(sc.CronExpr, sc.LastRun, time.Now()) {
			continue
		}
		if s.Rdb != nil {
			lockKey := "scribe:sched:lock:" + sc.ID
			ok, err := s.Rdb.SetNX(ctx, lockKey, "1", 2*time.Minute).Result()
			if err != nil || !ok {
				continue
			}
		}
		if err := s.Store.TouchSchedule(ctx, sc.ID); err != nil {
			s.Logger.Printf("touching schedule %s: %v", sc.ID, err)
			continue
		}
		runID, err := s.Runs.StartRun(ctx, sc.Task)
		if err != nil {
			s.Logger.Printf("starting scheduled run for %s: %v", sc.ID, err)
			continue
		}
		s.Logger.Printf("schedule %s (%s) fired run %s", sc.ID, sc.Name, runID)
	}
}

// isDue reports whether a schedule should fire at now, given when it
// last fired. Supports @hourly, @daily and 5-field cron expressions; an
// unparsable expression falls back to @daily.
func isDue(cronSpec string, last *time.Time, now time.Time) bool {
	switch cronSpec {
	case "@hourly":
		return last == nil || now.Sub(*last) >= time.Hour
	case "@daily":
		return last == nil || now.Sub(*last) >= 24*time.Hour
	}
	expr, err := cronexpr.Parse(cronSpec)
	if err != nil {
		return last == nil || now.Sub(*last) >= 24*time.Hour
	}
	base := now.Add(-time.Minute)
	if last != nil {
		base = *last
	}
	next := expr.Next(base)
	return !next.IsZero() && !next.After(now)
}
