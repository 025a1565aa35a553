// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalog

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultTrashSweepInterval = time.Hour

// RunTrashCollector purges the trash every interval until ctx is cancelled.
// retentionDays is read before each sweep; zero or less skips the sweep.
func (s *ProductService) RunTrashCollector(ctx context.Context, interval time.Duration, retentionDays func() int) error {
	if interval <= 0 {
		interval = DefaultTrashSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.sweepTrash(ctx, retentionDays())

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *ProductService) sweepTrash(ctx context.Context, days int) {
	if days <= 0 {
		return
	}
	if _, err := s.PurgeTrashed(ctx, time.Duration(days)*24*time.Hour); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("trash collection failed")
	}
}
