//go:build !linux

package credential

import (
	"context"

	"github.com/rs/zerolog"
)

// BLE is a stub for platforms without a supported HCI stack.
type BLE struct{}

// NewBLE returns ErrUnsupported on non-Linux platforms.
func NewBLE(name string, log zerolog.Logger) (*BLE, error) {
	return nil, ErrUnsupported
}

// Close is a no-op.
func (b *BLE) Close() error { return nil }

// Publish is not supported on this platform.
func (b *BLE) Publish(slot *Slot) error { return ErrUnsupported }

// Unpublish is a no-op.
func (b *BLE) Unpublish() {}

// StartScan is not supported on this platform.
func (b *BLE) StartScan(handler func(Advertisement)) (func(), error) {
	return nil, ErrUnsupported
}

// Connect is not supported on this platform.
func (b *BLE) Connect(ctx context.Context, adv Advertisement) (Link, error) {
	return nil, ErrUnsupported
}
