package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunSweeper removes expired challenges every interval until ctx is done.
// A sweep never races a Consume destructively, the store serializes both.
func (s *AuthService) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single expiry pass.
func (s *AuthService) Sweep(ctx context.Context) int {
	removed, err := s.challenges.SweepExpired(ctx, s.now())
	if err != nil {
		s.logger.Error("challenge sweep failed", zap.Error(err))
		return 0
	}
	if removed > 0 {
		s.logger.Debug("expired challenges removed", zap.Int("count", removed))
	}
	return removed
}
