package store

import "context"

//go:generate mockgen -destination=../../mocks/mock_store.go -package=mocks link-resolver/internal/store DeliveryGuard

// DeliveryGuard records which requests already had a worker started, so a
// redelivered request never produces a second message.
type DeliveryGuard interface {
	// Claim returns true the first time key is seen.
	Claim(ctx context.Context, key string) (bool, error)
	Close() error
}
