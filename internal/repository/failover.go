package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"hairstudio/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverDateLocker always takes the local locker first, then the primary
// while it is healthy. A failed primary is probed again once a minute; writers
// of one process stay serialized across the switch.
type FailoverDateLocker struct {
	primary   domain.DateLocker
	local     domain.DateLocker
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverDateLocker(primary, local domain.DateLocker, logger *zerolog.Logger) *FailoverDateLocker {
	return &FailoverDateLocker{
		primary: primary,
		local:   local,
		logger:  logger,
	}
}

func (l *FailoverDateLocker) Lock(ctx context.Context, date string) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, date)
	if err != nil {
		return nil, err
	}

	if l.isDown.Load() && time.Since(time.Unix(0, l.lastCheck.Load())) <= recoveryInterval {
		return unlockLocal, nil
	}

	unlockPrimary, err := l.primary.Lock(ctx, date)
	if err == nil {
		if l.isDown.Swap(false) {
			l.logger.Info().Msg("Primary date locker recovered")
		}
		return func() {
			unlockPrimary()
			unlockLocal()
		}, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		unlockLocal()
		return nil, err
	}
	if !l.isDown.Swap(true) {
		l.logger.Error().Err(err).Msg("Primary date locker failed, only the local lock is held")
	}
	l.lastCheck.Store(time.Now().UnixNano())
	return unlockLocal, nil
}

// IsDegraded reports whether only the local lock is being taken.
func (l *FailoverDateLocker) IsDegraded() bool {
	return l.isDown.Load()
}
