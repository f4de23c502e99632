package retention

import (
	"context"
	"sync"
	"time"

	logger "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Logger"
	interfaces "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Interfaces"
)

// Sweeper periodically purges readings older than the retention horizon
type Sweeper struct {
	readings  interfaces.ReadingRepository
	retention time.Duration
	interval  time.Duration
	logger    *logger.Logger
	now       func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// DefaultInterval is used when the configured interval is not positive
const DefaultInterval = time.Hour

// NewSweeper creates a sweeper; call Start to run it
func NewSweeper(readings interfaces.ReadingRepository, retention, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		readings:  readings,
		retention: retention,
		interval:  interval,
		logger:    log.WithComponent("retention"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Start runs one sweep immediately and then every interval until Stop
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.Sweep(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Sweep deletes readings with a timestamp before now minus the retention
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	cutoff := s.now().Add(-s.retention)

	removed, err := s.readings.PurgeBefore(ctx, cutoff)
	if err != nil {
		s.logger.Logger.Error().Err(err).Time("cutoff", cutoff).Msg("Retention sweep failed")
		return 0
	}
	if removed > 0 {
		s.logger.Logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("Expired readings purged")
	}
	return removed
}
