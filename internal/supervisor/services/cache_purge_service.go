// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cohortmart/internal/logging"
)

// Purger drops expired entries and reports how many were removed.
// *cohort.MemoryCache satisfies it.
type Purger interface {
	Purge() int
}

// CachePurgeService periodically removes expired recommendation cache
// entries so that memory held by cold keys is released without waiting for
// eviction.
type CachePurgeService struct {
	cache    Purger
	interval time.Duration
	logger   zerolog.Logger
	name     string
}

// NewCachePurgeService creates the service. A non-positive interval means
// one minute.
func NewCachePurgeService(cache Purger, interval time.Duration) *CachePurgeService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &CachePurgeService{
		cache:    cache,
		interval: interval,
		logger:   logging.WithComponent("cache-purge"),
		name:     "cache-purge",
	}
}

// Serve implements suture.Service.
func (s *CachePurgeService) Serve(ctx context.Context) error {
	s.logger.Debug().Dur("interval", s.interval).Msg("Cache purge service starting")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := s.cache.Purge(); n > 0 {
				s.logger.Debug().Int("removed", n).Msg("Purged expired cache entries")
			}
		}
	}
}

// String implements fmt.Stringer for suture's logs.
func (s *CachePurgeService) String() string {
	return s.name
}
