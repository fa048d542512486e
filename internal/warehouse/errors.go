// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package warehouse

import (
	"errors"
	"io"

	"github.com/tomtom215/cohortmart/internal/logging"
)

var (
	// ErrTransformBlocked means the mart layers were not rebuilt because the
	// scores table failed verification or is absent.
	ErrTransformBlocked = errors.New("transform blocked")

	// ErrNullKey means the staging layer holds a row with a null
	// deduplication key.
	ErrNullKey = errors.New("null deduplication key")

	// ErrNotBuilt means a layer was read before it was built.
	ErrNotBuilt = errors.New("layer not built")
)

// closeWithLog closes a resource and logs any error
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// closeQuietly closes a resource and explicitly ignores any error
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
