// Package sweeper runs the periodic maintenance pipeline: evict expired
// impressions, then persist a snapshot, then report liveness. Grounded on
// the three-stage pipeline-of-goroutines shape the event pipeline uses for
// its receive/parse/write stages, but tied together with errgroup instead
// of a raw sync.WaitGroup since every stage here can fail and should
// cancel its siblings.
package sweeper

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/w3c/attribution/internal/engine"
)

// SnapshotStore is the subset of *sqlite.Store the sweeper drives.
type SnapshotStore interface {
	Save(snap engine.Snapshot) error
}

// Engine is the subset of *engine.Engine the sweeper drives.
type Engine interface {
	ClearExpiredImpressions()
	Snapshot() engine.Snapshot
}

// Sweeper periodically evicts expired impressions and persists a snapshot.
type Sweeper struct {
	engine   Engine
	snapshot SnapshotStore
	interval time.Duration
	log      *zap.Logger

	healthy atomicBool
}

func New(eng Engine, snapshot SnapshotStore, interval time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{engine: eng, snapshot: snapshot, interval: interval, log: log}
}

// Run drives the sweep loop and an optional health server until ctx is
// cancelled or a stage errors. healthAddr may be empty to skip the health
// server.
func (s *Sweeper) Run(ctx context.Context, healthAddr string) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.sweepLoop(ctx)
	})

	if healthAddr != "" {
		server := &http.Server{Addr: healthAddr, Handler: s.healthHandler()}
		g.Go(func() error {
			<-ctx.Done()
			return server.Close()
		})
		g.Go(func() error {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

func (s *Sweeper) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper shutting down")
			return nil
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Sweeper) sweepOnce() {
	s.healthy.set(false)

	s.engine.ClearExpiredImpressions()

	if err := s.snapshot.Save(s.engine.Snapshot()); err != nil {
		s.log.Error("failed to persist snapshot", zap.Error(err))
		return
	}

	s.healthy.set(true)
	s.log.Info("sweep completed")
}

func (s *Sweeper) healthHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !s.healthy.get() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not yet swept"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}
