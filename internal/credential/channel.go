package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/eja/tazlink/internal/dispatch"
	"github.com/rs/zerolog"
)

const (
	// ServiceUUID identifies tazlink broadcasts among unrelated advertisements.
	ServiceUUID = "82935248-0000-1000-8000-00805f9b34fb"
	// SlotUUID identifies the readable credential slot inside the service.
	SlotUUID = "82935248-0000-1000-8000-00805f9b34fc"

	// RequestedMTU is the payload size asked for after connecting.
	RequestedMTU = 512
	// DefaultMTU is the link MTU before any exchange.
	DefaultMTU = 23

	attReadHeader = 1

	defaultFetchTimeout = 15 * time.Second
	defaultRetryAfter   = 3 * time.Second
)

// ErrUnsupported is returned when no wireless transport is available.
var ErrUnsupported = errors.New("short-range wireless transport not available")

// CancelFunc stops an in-flight scan. It is safe to call more than once.
type CancelFunc func()

// Advertisement is a single scan result reported by a Central.
type Advertisement struct {
	Address  string
	Services []string

	native any
}

// Advertises reports whether the advertisement carries the given service.
func (a Advertisement) Advertises(uuid string) bool {
	for _, s := range a.Services {
		if strings.EqualFold(s, uuid) {
			return true
		}
	}
	return false
}

// Peripheral is the host-side transport: it exposes a slot under the service
// identifier and advertises it until Unpublish.
type Peripheral interface {
	Publish(slot *Slot) error
	Unpublish()
}

// Link is an open client connection to a broadcasting host.
type Link interface {
	OffsetReader
	ExchangeMTU(ctx context.Context, mtu int) (int, error)
	Close() error
}

// Central is the client-side transport.
type Central interface {
	// StartScan begins delivering advertisements to handler. It returns an
	// error only if scanning cannot be started at all.
	StartScan(handler func(Advertisement)) (stop func(), err error)
	Connect(ctx context.Context, adv Advertisement) (Link, error)
}

// Options configures a Channel. Either transport may be nil when the device
// only plays one role.
type Options struct {
	Peripheral   Peripheral
	Central      Central
	Executor     dispatch.Executor
	Logger       zerolog.Logger
	FetchTimeout time.Duration
	// RetryAfter is how long a candidate that failed at the transport level
	// is ignored before it may be tried again.
	RetryAfter time.Duration
}

// Channel broadcasts or scans for credentials.
type Channel struct {
	peripheral   Peripheral
	central      Central
	exec         dispatch.Executor
	log          zerolog.Logger
	fetchTimeout time.Duration
	retryAfter   time.Duration

	mu           sync.Mutex
	broadcasting bool
}

// NewChannel creates a channel over the given transports.
func NewChannel(opts Options) *Channel {
	exec := opts.Executor
	if exec == nil {
		exec = dispatch.Inline{}
	}
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	retry := opts.RetryAfter
	if retry <= 0 {
		retry = defaultRetryAfter
	}
	return &Channel{
		peripheral:   opts.Peripheral,
		central:      opts.Central,
		exec:         exec,
		log:          opts.Logger,
		fetchTimeout: timeout,
		retryAfter:   retry,
	}
}

// Broadcast exposes the encoded credentials and advertises the service until
// StopBroadcast. A second call replaces the previous broadcast.
func (c *Channel) Broadcast(creds Credentials) error {
	if c.peripheral == nil {
		return ErrUnsupported
	}
	payload, err := Encode(creds)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broadcasting {
		c.peripheral.Unpublish()
		c.broadcasting = false
	}
	if err := c.peripheral.Publish(NewSlot(payload)); err != nil {
		return fmt.Errorf("failed to publish credentials: %w", err)
	}
	c.broadcasting = true
	c.log.Info().Str("network", creds.NetworkName).Str("address", creds.Address).Int("bytes", len(payload)).Msg("broadcasting credentials")
	return nil
}

// StopBroadcast closes the endpoint and stops advertising. It does nothing
// when not broadcasting.
func (c *Channel) StopBroadcast() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.broadcasting {
		return
	}
	c.peripheral.Unpublish()
	c.broadcasting = false
	c.log.Info().Msg("broadcast stopped")
}

// Broadcasting reports whether a broadcast is active.
func (c *Channel) Broadcasting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broadcasting
}

// Scan looks for a broadcasting host and delivers its credentials to
// onResult. Candidates that fail to connect or carry a malformed payload are
// skipped and scanning continues. onError fires only when scanning cannot be
// started. The returned CancelFunc stops everything without invoking either
// callback.
func (c *Channel) Scan(onResult func(Credentials), onError func()) CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	stop := func() { once.Do(cancel) }

	go c.scanLoop(ctx, onResult, onError)
	return stop
}

func (c *Channel) scanLoop(ctx context.Context, onResult func(Credentials), onError func()) {
	if c.central == nil {
		c.exec.Post(dispatch.Guarded(ctx, onError))
		return
	}

	// Candidates are ignored until the recorded time. A malformed payload
	// bans the candidate for the rest of the scan.
	ignored := make(map[string]time.Time)
	for {
		adv, err := c.nextCandidate(ctx, ignored)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn().Err(err).Msg("scan could not be started")
				c.exec.Post(dispatch.Guarded(ctx, onError))
			}
			return
		}

		creds, err := c.fetch(ctx, adv)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if errors.Is(err, ErrMalformed) {
				ignored[adv.Address] = time.Unix(1<<62, 0)
			} else {
				ignored[adv.Address] = time.Now().Add(c.retryAfter)
			}
			c.log.Debug().Err(err).Str("candidate", adv.Address).Msg("candidate skipped")
			continue
		}

		c.log.Info().Str("candidate", adv.Address).Str("network", creds.NetworkName).Msg("credentials received")
		c.exec.Post(dispatch.Guarded(ctx, func() { onResult(creds) }))
		return
	}
}

// nextCandidate scans until a matching advertisement appears, then stops the
// scan before returning it.
func (c *Channel) nextCandidate(ctx context.Context, ignored map[string]time.Time) (Advertisement, error) {
	// The handler runs on the transport's goroutine; it only reads a copy.
	skip := make(map[string]time.Time, len(ignored))
	for addr, until := range ignored {
		skip[addr] = until
	}

	found := make(chan Advertisement, 1)
	stopScan, err := c.central.StartScan(func(adv Advertisement) {
		if !adv.Advertises(ServiceUUID) {
			return
		}
		if until, ok := skip[adv.Address]; ok && time.Now().Before(until) {
			return
		}
		select {
		case found <- adv:
		default:
		}
	})
	if err != nil {
		return Advertisement{}, err
	}
	defer stopScan()

	select {
	case <-ctx.Done():
		return Advertisement{}, ctx.Err()
	case adv := <-found:
		return adv, nil
	}
}

func (c *Channel) fetch(ctx context.Context, adv Advertisement) (Credentials, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	link, err := c.central.Connect(ctx, adv)
	if err != nil {
		return Credentials{}, fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = link.Close() }()

	mtu, err := link.ExchangeMTU(ctx, RequestedMTU)
	if err != nil || mtu < DefaultMTU {
		mtu = DefaultMTU
	}

	payload, err := ReadChunked(ctx, link, mtu-attReadHeader)
	if err != nil {
		return Credentials{}, err
	}
	return Decode(payload)
}
