package app

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/syncboard/syncboard/pkg/api"
	"github.com/syncboard/syncboard/pkg/config"
	"github.com/syncboard/syncboard/pkg/infrastructure/persistence"
	"github.com/syncboard/syncboard/pkg/integration/backend"
	"github.com/syncboard/syncboard/pkg/jobs"
	"github.com/syncboard/syncboard/pkg/logger"
	"github.com/syncboard/syncboard/pkg/orchestration"
	"github.com/syncboard/syncboard/pkg/sync"
)

// ---------------------------------------------------------------------------
// Application container — dependency injection root
// ---------------------------------------------------------------------------

// Container wires the sync core, persistence, backend client, and API
// server together. It acts as the composition root for one process.
type Container struct {
	Config  *config.Config
	Bus     *sync.Bus
	Store   *persistence.JobStore
	Backend *backend.Client
	Sync    *SyncService
	Turns   *orchestration.TurnProcessor
	Server  *api.Server

	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewContainer creates a fully wired container from configuration.
func NewContainer(cfg *config.Config) (*Container, error) {
	store, err := persistence.OpenJobStore(cfg.WorkspacePath())
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}

	dedup := sync.NewDedupStore(cfg.Sync.DebounceWindow, cfg.Sync.DedupRetention)
	bus := sync.NewBus(dedup)

	client := backend.NewClient(cfg.Backend)
	poller := jobs.NewPoller(client)

	svc := NewSyncService(bus, poller, client, store, cfg.Sync.PollInterval, cfg.Sync.PollTimeout)
	server := api.NewServer(cfg, bus, store, svc)

	return &Container{
		Config:  cfg,
		Bus:     bus,
		Store:   store,
		Backend: client,
		Sync:    svc,
		Turns:   orchestration.NewTurnProcessor(svc),
		Server:  server,
		done:    make(chan struct{}),
	}, nil
}

// Start brings up the API server and the retention sweep. It returns once
// everything is running.
func (c *Container) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	if err := c.Server.Start(ctx); err != nil {
		c.cancel()
		return fmt.Errorf("start server: %w", err)
	}

	c.started = true
	go c.retentionLoop(ctx)

	logger.InfoCF("app", "Syncboard started", map[string]interface{}{
		"listen":    c.Config.ListenAddr(),
		"workspace": c.Config.WorkspacePath(),
	})
	return nil
}

// Stop shuts the container down in reverse start order. Safe to call on a
// container that never started; only a launched retention loop is awaited.
func (c *Container) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.Server.Stop()
	if c.started {
		<-c.done
	}
	if err := c.Store.Close(); err != nil {
		logger.WarnCF("app", "Job store close failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	logger.InfoC("app", "Syncboard stopped")
}

// retentionLoop purges finished jobs older than the configured max age.
// The schedule is a cron expression checked once a minute, so a tick that
// lands inside the due minute fires exactly once.
func (c *Container) retentionLoop(ctx context.Context) {
	defer close(c.done)

	gron := gronx.New()
	if !gron.IsValid(c.Config.Retention.Cron) {
		logger.WarnCF("app", "Invalid retention schedule, sweep disabled", map[string]interface{}{
			"cron": c.Config.Retention.Cron,
		})
		return
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := gron.IsDue(c.Config.Retention.Cron, now)
			if err != nil || !due {
				continue
			}
			cutoff := now.Add(-c.Config.Retention.MaxAge)
			purged, err := c.Store.PurgeFinishedBefore(cutoff)
			if err != nil {
				logger.WarnCF("app", "Retention sweep failed", map[string]interface{}{
					"error": err.Error(),
				})
				continue
			}
			if purged > 0 {
				logger.InfoCF("app", "Retention sweep purged jobs", map[string]interface{}{
					"purged": purged,
					"cutoff": cutoff.Format(time.RFC3339),
				})
			}
		}
	}
}
