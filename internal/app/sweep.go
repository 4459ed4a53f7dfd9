package service

import (
	"context"
	"time"

	"github.com/okian/pairup/pkg/logger"
)

func (s *Service) sweepLoop(ctx context.Context) {
	defer close(s.sweepDone)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep evicts entries older than the queue TTL and retries auto-match for
// everyone still queued, oldest first. It returns the eviction and match
// counts.
func (s *Service) Sweep(ctx context.Context) (evicted, matched int) {
	if s.queueTTL > 0 {
		for _, e := range s.pool.EvictIdle(ctx, s.now().Add(-s.queueTTL)) {
			s.hub.PushNotice(ctx, e.ParticipantID(), NoticeExpired)
			evicted++
		}
	}

	for _, id := range s.pool.IDs() {
		if !s.pool.Has(id) {
			continue
		}
		sess, err := s.engine.AttemptAutoMatch(ctx, id, s.engine.Threshold())
		if err != nil || sess == nil {
			continue
		}
		s.notifyMatched(ctx, *sess)
		matched++
	}

	if evicted > 0 || matched > 0 {
		s.logger.Info(ctx, "sweep finished",
			logger.Int("evicted", evicted),
			logger.Int("matched", matched),
			logger.Int("queued", s.pool.Len()),
		)
	}
	return evicted, matched
}
