package oidc

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultSweepInterval = time.Minute

// Sweep removes expired sessions, nonces and issuer sessions along with the locks of the removed sessions.
func (s *Service) Sweep(ctx context.Context) error {
	removed, err := s.sessions.ClearExpired(ctx)
	for id := range removed {
		s.locks.Delete(id)
	}
	if err != nil {
		return err
	}
	if _, err = s.nonces.ClearExpired(ctx); err != nil {
		return err
	}
	issuerSessions, err := s.issuerSessions.ClearExpired(ctx)
	if err != nil {
		return err
	}
	if n := len(removed) + len(issuerSessions); n > 0 {
		logrus.WithField("issuer", s.config.Name).Debugf("swept %d expired sessions", n)
	}
	return nil
}

// StartSweeper sweeps every interval until ctx is done. It returns immediately.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := s.clock.Ticker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Sweep(ctx); err != nil {
					logrus.WithError(err).Warnf("sweeping issuer<%s>", s.config.Name)
				}
			}
		}
	}()
}
