package sync

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"platform-sync-service/internal/config"
	"platform-sync-service/internal/logger"
	"platform-sync-service/internal/store"
)

// Scheduler drives connection selection on a single recurring tick.
// Pass execution is handed off to the engine, so a slow handler never
// blocks the tick or other connections' passes.
type Scheduler struct {
	cfg    config.SchedulerConfig
	engine *Engine
	cron   *cron.Cron
}

func NewScheduler(cfg config.SchedulerConfig, engine *Engine) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		engine: engine,
		cron:   cron.New(),
	}
}

func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		logger.Log.Info("Scheduler is disabled")
		return
	}

	interval := s.cfg.Interval
	if interval == "" {
		interval = "@every 1m"
	}
	logger.Log.Info("Starting scheduler", zap.String("interval", interval))

	if _, err := s.cron.AddFunc(interval, s.tick); err != nil {
		logger.Log.Error("Failed to schedule sync tick", zap.Error(err))
		return
	}
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	logger.Log.Info("Stopped scheduler")
}

// tick starts a pass for every enabled connection that is due and not
// already syncing. One connection's failure never stalls the tick that
// services the others.
func (s *Scheduler) tick() {
	ctx := context.Background()

	conns, err := s.engine.Connections(ctx)
	if err != nil {
		logger.Log.Error("Scheduler could not list connections", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	for _, conn := range conns {
		if !due(conn, now) {
			continue
		}
		if _, err := s.engine.StartSync(ctx, conn.ID); err != nil {
			if errors.Is(err, ErrSyncInProgress) {
				logger.Log.Debug("Sync already in progress, skipping",
					zap.String("connection", conn.ID))
				continue
			}
			logger.Log.Error("Failed to start scheduled sync",
				zap.String("connection", conn.ID),
				zap.Error(err),
			)
		}
	}
}

// due reports whether a connection's configured frequency has elapsed.
// A connection that has never synced is always due.
func due(conn *store.Connection, now time.Time) bool {
	if !conn.Enabled {
		return false
	}
	if conn.LastSyncAt == nil {
		return true
	}
	if conn.FrequencyMinutes <= 0 {
		return true
	}
	return now.Sub(*conn.LastSyncAt) >= time.Duration(conn.FrequencyMinutes)*time.Minute
}
