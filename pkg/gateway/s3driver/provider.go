package s3driver

import (
	"time"

	"github.com/gatefs/gatefs/pkg/gateway/models"
)

// providerProfile captures per-provider tuning. The differences are
// configuration-level only: the driver interface is identical for every
// provider.
type providerProfile struct {
	// MaxAttempts is the retry budget for idempotent operations.
	MaxAttempts int

	// RequestTimeout bounds a single S3 HTTP round trip.
	RequestTimeout time.Duration

	// RelaxedChecksums sets request/response checksum calculation to
	// "when required". B2, R2, and most generic services reject the
	// default CRC-based checksums on some operations.
	RelaxedChecksums bool
}

// profileFor returns the tuning profile for a provider type.
func profileFor(p models.ProviderType) providerProfile {
	switch p {
	case models.ProviderAWS:
		return providerProfile{
			MaxAttempts:    3,
			RequestTimeout: 2 * time.Minute,
		}
	case models.ProviderB2:
		// B2 is slower to acknowledge large parts and throttles harder.
		return providerProfile{
			MaxAttempts:      4,
			RequestTimeout:   5 * time.Minute,
			RelaxedChecksums: true,
		}
	default: // R2, generic
		return providerProfile{
			MaxAttempts:      3,
			RequestTimeout:   2 * time.Minute,
			RelaxedChecksums: true,
		}
	}
}

// Retry backoff bounds for idempotent operations.
const (
	retryBaseBackoff = 500 * time.Millisecond
	retryMaxBackoff  = 10 * time.Second
)

// Per-part upload retry policy.
const (
	partMaxAttempts = 3
	partBaseBackoff = time.Second
)
