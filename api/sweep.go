/*
sweep.go - Offboarding notice-period sweep

PURPOSE:
  Periodically finds members whose offboarding notice period has elapsed
  and finalizes their termination. Offboarding is started by a person;
  the sweep only executes what the notice period already promised.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Terminations run through the member service under the system actor,
    so swept members leave the same audit trail as manual terminations
  - One member failing never stops the sweep

CONFIGURATION:
  - Interval: How often to check (default: 1 hour; <= 0 disables)
  - Settings.NoticeDays: The notice period measured from OffboardingAt

USAGE:
  sweep := NewOffboardingSweep(handler.Members, store, settings, m, log)
  sweep.Start()
  // ... later
  sweep.Stop()

SEE ALSO:
  - members/service.go: StartOffboarding / Terminate
  - metrics/metrics.go: Sweep counters
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coopware/share-engine/ledger"
	"github.com/coopware/share-engine/members"
	"github.com/coopware/share-engine/metrics"
)

// OffboardingSweep finalizes expired offboarding notice periods.
type OffboardingSweep struct {
	Members  *members.Service
	Store    ledger.Store
	Settings ledger.CooperativeSettings
	Metrics  *metrics.Metrics
	Log      zerolog.Logger
	Interval time.Duration
	Now      func() time.Time // nil means time.Now

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewOffboardingSweep creates a sweep checking hourly.
func NewOffboardingSweep(svc *members.Service, store ledger.Store, settings ledger.CooperativeSettings, m *metrics.Metrics, log zerolog.Logger) *OffboardingSweep {
	return &OffboardingSweep{
		Members:  svc,
		Store:    store,
		Settings: settings,
		Metrics:  m,
		Log:      log,
		Interval: time.Hour,
		stop:     make(chan struct{}),
	}
}

// Start begins the background sweep. The first pass runs immediately.
func (s *OffboardingSweep) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Interval <= 0 {
		s.Log.Info().Msg("offboarding sweep disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run()

	s.Log.Info().Dur("interval", s.Interval).Msg("offboarding sweep started")
}

// Stop stops the sweep and waits for an in-flight pass to finish.
func (s *OffboardingSweep) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil

	s.Log.Info().Msg("offboarding sweep stopped")
}

// RunNow triggers an immediate pass (for testing/admin).
func (s *OffboardingSweep) RunNow() {
	s.sweep()
}

func (s *OffboardingSweep) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.sweep()

	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

// sweep terminates every Offboarding member whose notice period has
// fully elapsed.
func (s *OffboardingSweep) sweep() {
	ctx := context.Background()
	now := s.now()

	s.Metrics.IncrementSweepRun()

	offboarding, err := s.Store.ListMembers(ctx, ledger.MemberFilter{Status: ledger.MemberOffboarding})
	if err != nil {
		s.Log.Error().Err(err).Msg("sweep: failed to list offboarding members")
		return
	}

	noticeDays := s.Settings.NoticeDays()
	terminated := 0
	for i := range offboarding {
		member := offboarding[i]
		if member.OffboardingAt == nil {
			continue
		}
		deadline := member.OffboardingAt.AddDate(0, 0, noticeDays)
		if now.Before(deadline) {
			continue
		}

		if _, err := s.Members.Terminate(ctx, ledger.SystemActor(), member.ID); err != nil {
			s.Log.Error().Err(err).
				Str("member", member.MemberNumber).
				Msg("sweep: termination failed")
			continue
		}
		terminated++

		s.Log.Info().
			Str("member", member.MemberNumber).
			Time("offboarding_at", *member.OffboardingAt).
			Msg("sweep: notice period elapsed, membership terminated")
	}

	s.Metrics.AddSweepTerminations(terminated)
	if terminated > 0 {
		s.Log.Info().
			Int("terminated", terminated).
			Int("checked", len(offboarding)).
			Msg("offboarding sweep completed")
	}
}

func (s *OffboardingSweep) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
