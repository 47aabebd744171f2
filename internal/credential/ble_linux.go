//go:build linux

package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/rs/zerolog"
)

// scanStartWindow is how long StartScan waits for the HCI layer to reject a
// scan before reporting it as running.
const scanStartWindow = 300 * time.Millisecond

var (
	bleService = ble.MustParse(ServiceUUID)
	bleSlot    = ble.MustParse(SlotUUID)
)

// BLE is the Bluetooth Low Energy transport backed by the local HCI adapter.
// It serves as both Peripheral and Central.
type BLE struct {
	dev  ble.Device
	name string
	log  zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

var (
	_ Peripheral = (*BLE)(nil)
	_ Central    = (*BLE)(nil)
)

// NewBLE opens the default HCI device. name is the advertised local name.
func NewBLE(name string, log zerolog.Logger) (*BLE, error) {
	dev, err := linux.NewDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return &BLE{dev: dev, name: name, log: log}, nil
}

// Close releases the HCI device.
func (b *BLE) Close() error {
	b.Unpublish()
	return b.dev.Stop()
}

// Publish registers a GATT service with one readable characteristic and starts
// advertising the service identifier.
func (b *BLE) Publish(slot *Slot) error {
	svc := ble.NewService(bleService)
	chr := svc.NewCharacteristic(bleSlot)
	chr.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
		chunk := slot.ReadAt(req.Offset())
		if n := rsp.Cap(); len(chunk) > n {
			chunk = chunk[:n]
		}
		if _, err := rsp.Write(chunk); err != nil {
			b.log.Debug().Err(err).Int("offset", req.Offset()).Msg("slot read response failed")
		}
	}))

	if err := b.dev.AddService(svc); err != nil {
		return fmt.Errorf("failed to add GATT service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	go func() {
		err := b.dev.AdvertiseNameAndServices(ctx, b.name, bleService)
		if err != nil && !errors.Is(err, context.Canceled) {
			b.log.Warn().Err(err).Msg("advertising stopped")
		}
	}()
	return nil
}

// Unpublish stops advertising and removes the GATT service.
func (b *BLE) Unpublish() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if err := b.dev.RemoveAllServices(); err != nil {
		b.log.Debug().Err(err).Msg("failed to remove GATT services")
	}
}

// StartScan runs an active scan in the background.
func (b *BLE) StartScan(handler func(Advertisement)) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		errCh <- b.dev.Scan(ctx, false, func(a ble.Advertisement) {
			handler(toAdvertisement(a))
		})
	}()

	select {
	case err := <-errCh:
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("failed to start scan: %w", err)
		}
		return nil, fmt.Errorf("scan ended immediately")
	case <-time.After(scanStartWindow):
	}
	return cancel, nil
}

// Connect dials the advertiser and locates the credential slot.
func (b *BLE) Connect(ctx context.Context, adv Advertisement) (Link, error) {
	a, ok := adv.native.(ble.Advertisement)
	if !ok {
		return nil, fmt.Errorf("advertisement %s was not produced by this transport", adv.Address)
	}

	client, err := b.dev.Dial(ctx, a.Addr())
	if err != nil {
		return nil, err
	}
	return &bleLink{client: client, mtu: DefaultMTU}, nil
}

func toAdvertisement(a ble.Advertisement) Advertisement {
	services := make([]string, 0, len(a.Services()))
	for _, u := range a.Services() {
		if u.Equal(bleService) {
			services = append(services, ServiceUUID)
			continue
		}
		services = append(services, u.String())
	}
	return Advertisement{
		Address:  a.Addr().String(),
		Services: services,
		native:   a,
	}
}

// bleLink reads the slot characteristic of a connected host.
type bleLink struct {
	client ble.Client
	chr    *ble.Characteristic
	mtu    int

	// long holds the value assembled by the stack's read-blob sequence; it is
	// sliced to serve reads past the first payload.
	long []byte
}

func (l *bleLink) ExchangeMTU(ctx context.Context, mtu int) (int, error) {
	tx, err := l.client.ExchangeMTU(mtu)
	if err != nil {
		return DefaultMTU, err
	}
	l.mtu = tx
	return tx, nil
}

func (l *bleLink) ReadAt(ctx context.Context, offset int) ([]byte, error) {
	if err := l.discover(); err != nil {
		return nil, err
	}
	if offset == 0 {
		return l.client.ReadCharacteristic(l.chr)
	}
	if l.long == nil {
		v, err := l.client.ReadLongCharacteristic(l.chr)
		if err != nil {
			return nil, err
		}
		l.long = v
	}
	if offset >= len(l.long) {
		return []byte{}, nil
	}
	end := offset + l.mtu - attReadHeader
	if end > len(l.long) {
		end = len(l.long)
	}
	return l.long[offset:end], nil
}

func (l *bleLink) discover() error {
	if l.chr != nil {
		return nil
	}
	profile, err := l.client.DiscoverProfile(true)
	if err != nil {
		return fmt.Errorf("failed to discover services: %w", err)
	}
	chr := profile.FindCharacteristic(ble.NewCharacteristic(bleSlot))
	if chr == nil {
		return fmt.Errorf("credential slot not found")
	}
	l.chr = chr
	return nil
}

func (l *bleLink) Close() error {
	return l.client.CancelConnection()
}
