// Package gc runs the external sweep pass the engine only ever
// schedules work for: turning soft tombstones (an artifact marked for
// delete by the connect or download phase) into actually freed
// disk space. Nothing in the connect or download phase deletes a file
// directly.
package gc

import (
	"time"

	"github.com/corvusflow/rescache/internal/cache"
	"github.com/corvusflow/rescache/internal/infra/logger"
)

// DefaultGrace is how long a tombstoned artifact is kept around after
// being marked, giving any reader that already opened the old file a
// window to finish before the bytes disappear underneath it.
const DefaultGrace = 10 * time.Minute

// Sweeper runs periodic or on-demand catalog sweeps.
type Sweeper struct {
	Catalog *cache.Catalog
	Logger  *logger.Logger
	Grace   time.Duration
}

// New constructs a Sweeper with DefaultGrace.
func New(catalog *cache.Catalog, log *logger.Logger) *Sweeper {
	return &Sweeper{Catalog: catalog, Logger: log, Grace: DefaultGrace}
}

// Run performs one sweep pass and logs how many artifacts were freed.
func (s *Sweeper) Run(now time.Time) (int, error) {
	removed, err := s.Catalog.Sweep(now, s.Grace)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.Logger.Info("gc: removed %d tombstoned artifact(s)", removed)
	}
	return removed, nil
}

// RunEvery runs Run on a fixed interval until stop is closed.
func (s *Sweeper) RunEvery(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case t := <-ticker.C:
			if _, err := s.Run(t); err != nil {
				s.Logger.Error("gc: sweep failed: %v", err)
			}
		}
	}
}
