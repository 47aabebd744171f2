// Package hotspot starts a local-only access point for hosting and joins one
// as a client.
package hotspot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/eja/tazlink/internal/credential"
	"github.com/eja/tazlink/internal/dispatch"
	"github.com/rs/zerolog"
)

const (
	defaultJoinTimeout = 30 * time.Second
	// DefaultSettleDelay is how long a legacy join waits before reporting
	// success without any confirmation from the radio.
	DefaultSettleDelay = 5 * time.Second

	defaultAddressWait = 3 * time.Second
	defaultAddressPoll = 250 * time.Millisecond
)

// HostState tracks the host side of the manager.
type HostState int

const (
	Idle HostState = iota
	Reserving
	Active
)

func (s HostState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Reserving:
		return "reserving"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("HostState(%d)", int(s))
	}
}

// Strategy names how a join was performed.
type Strategy string

const (
	StrategyScoped Strategy = "scoped"
	StrategyLegacy Strategy = "legacy"
)

// Network describes an access point started by an AccessPoint backend.
type Network struct {
	SSID       string
	Passphrase string
	// Interface is the device carrying the access point, if the backend
	// knows it.
	Interface string
}

// Association is the result of a successful join.
type Association struct {
	Interface string
	Strategy  Strategy
}

// AccessPoint starts and releases a local-only access point.
type AccessPoint interface {
	Start(ctx context.Context) (Network, error)
	Release(ctx context.Context) error
}

// Joiner joins an access point by name and passphrase.
type Joiner interface {
	Join(ctx context.Context, ssid, passphrase string) (Association, error)
}

// ScopedJoiner joins without making the access point the default route.
type ScopedJoiner interface {
	Joiner
	Supported(ctx context.Context) bool
}

// Options configures a Manager. Nil backends make the matching operation fail.
type Options struct {
	AccessPoint AccessPoint
	Scoped      ScopedJoiner
	Legacy      Joiner
	Addresses   AddressLister
	Executor    dispatch.Executor
	Logger      zerolog.Logger

	JoinTimeout time.Duration
	SettleDelay time.Duration
	// AddressWait bounds how long Reserve waits for the access point address
	// to show up after the backend reports the access point started.
	AddressWait time.Duration
	AddressPoll time.Duration
}

// Manager owns the access point reservation and performs joins.
type Manager struct {
	ap     AccessPoint
	scoped ScopedJoiner
	legacy Joiner
	addrs  AddressLister
	exec   dispatch.Executor
	log    zerolog.Logger

	joinTimeout time.Duration
	settleDelay time.Duration
	addrWait    time.Duration
	addrPoll    time.Duration

	mu    sync.Mutex
	state HostState
	gen   uint64
	net   Network
}

// NewManager creates a manager. A negative SettleDelay disables the settle wait.
func NewManager(opts Options) *Manager {
	m := &Manager{
		ap:          opts.AccessPoint,
		scoped:      opts.Scoped,
		legacy:      opts.Legacy,
		addrs:       opts.Addresses,
		exec:        opts.Executor,
		log:         opts.Logger,
		joinTimeout: opts.JoinTimeout,
		settleDelay: opts.SettleDelay,
		addrWait:    opts.AddressWait,
		addrPoll:    opts.AddressPoll,
	}
	if m.addrs == nil {
		m.addrs = InterfaceAddresses
	}
	if m.exec == nil {
		m.exec = dispatch.Inline{}
	}
	if m.joinTimeout <= 0 {
		m.joinTimeout = defaultJoinTimeout
	}
	if m.settleDelay == 0 {
		m.settleDelay = DefaultSettleDelay
	}
	if m.addrWait <= 0 {
		m.addrWait = defaultAddressWait
	}
	if m.addrPoll <= 0 {
		m.addrPoll = defaultAddressPoll
	}
	return m
}

// State returns the host state.
func (m *Manager) State() HostState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Network returns the active access point, if any.
func (m *Manager) Network() (Network, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net, m.state == Active
}

// Reserve starts a local-only access point and reports its credentials and
// the address it added to this device. Exactly one callback fires.
func (m *Manager) Reserve(onSuccess func(credential.Credentials), onFailure func()) {
	m.mu.Lock()
	if m.state != Idle || m.ap == nil {
		m.mu.Unlock()
		m.exec.Post(onFailure)
		return
	}
	m.state = Reserving
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	go func() {
		creds, err := m.reserve(context.Background(), gen)
		if err != nil {
			m.log.Warn().Err(err).Msg("access point reservation failed")
			m.exec.Post(onFailure)
			return
		}
		m.log.Info().Str("network", creds.NetworkName).Str("address", creds.Address).Msg("access point active")
		m.exec.Post(func() { onSuccess(creds) })
	}()
}

func (m *Manager) reserve(ctx context.Context, gen uint64) (creds credential.Credentials, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("access point backend panicked: %v", r)
		}
		if err != nil {
			m.abandon(gen)
		}
	}()

	before, lerr := m.addrs(ctx)
	if lerr != nil {
		m.log.Debug().Err(lerr).Msg("address snapshot failed, assuming none")
		before = nil
	}

	nw, err := m.ap.Start(ctx)
	if err != nil {
		return creds, fmt.Errorf("failed to start access point: %w", err)
	}

	addr, iface, err := m.waitNewAddress(ctx, sortedKeys(before))
	if err != nil {
		m.release(ctx)
		return creds, err
	}
	if nw.Interface == "" {
		nw.Interface = iface
	}
	nw.SSID = StripQuotes(nw.SSID)
	nw.Passphrase = StripQuotes(nw.Passphrase)

	m.mu.Lock()
	if m.gen != gen || m.state != Reserving {
		m.mu.Unlock()
		m.release(ctx)
		return creds, errors.New("reservation stopped while starting")
	}
	m.state = Active
	m.net = nw
	m.mu.Unlock()

	return credential.Credentials{
		NetworkName: nw.SSID,
		Passphrase:  nw.Passphrase,
		Address:     addr,
	}, nil
}

// waitNewAddress polls until exactly one new address appears. Several new
// addresses fail at once; none keeps polling until the wait expires.
func (m *Manager) waitNewAddress(ctx context.Context, before []string) (string, string, error) {
	type found struct{ addr, iface string }

	op := func() (found, error) {
		after, err := m.addrs(ctx)
		if err != nil {
			return found{}, err
		}
		addr, err := NewAddress(before, sortedKeys(after))
		if errors.Is(err, ErrAmbiguousAddress) {
			return found{}, backoff.Permanent(err)
		}
		if err != nil {
			return found{}, err
		}
		return found{addr: addr, iface: after[addr]}, nil
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(m.addrPoll)),
		backoff.WithMaxElapsedTime(m.addrWait),
	)
	if err != nil {
		return "", "", err
	}
	return res.addr, res.iface, nil
}

// abandon returns to Idle unless a newer reservation or StopHost took over.
func (m *Manager) abandon(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == gen {
		m.state = Idle
		m.net = Network{}
	}
}

func (m *Manager) release(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Warn().Interface("panic", r).Msg("access point release panicked")
		}
	}()
	if err := m.ap.Release(ctx); err != nil {
		m.log.Debug().Err(err).Msg("access point release failed")
	}
}

// StopHost releases the access point. It is safe to call at any time and
// more than once.
func (m *Manager) StopHost() {
	m.mu.Lock()
	prev := m.state
	m.state = Idle
	m.net = Network{}
	m.gen++
	m.mu.Unlock()

	if prev == Idle {
		return
	}
	m.release(context.Background())
	m.log.Info().Str("from", prev.String()).Msg("access point stopped")
}

// Join connects to the named access point. The scoped strategy is tried
// first when available; refusal, timeout or error falls back to the legacy
// strategy. Exactly one callback fires.
func (m *Manager) Join(ssid, passphrase string, onSuccess func(Association), onFailure func()) {
	ssid = StripQuotes(ssid)
	passphrase = StripQuotes(passphrase)

	go func() {
		assoc, err := m.join(context.Background(), ssid, passphrase)
		if err != nil {
			m.log.Warn().Err(err).Str("network", ssid).Msg("join failed")
			m.exec.Post(onFailure)
			return
		}
		m.log.Info().Str("network", ssid).Str("interface", assoc.Interface).Str("strategy", string(assoc.Strategy)).Msg("joined access point")
		m.exec.Post(func() { onSuccess(assoc) })
	}()
}

func (m *Manager) join(ctx context.Context, ssid, passphrase string) (Association, error) {
	if m.scoped != nil && m.scopedSupported(ctx) {
		assoc, err := m.tryScoped(ctx, ssid, passphrase)
		if err == nil {
			assoc.Strategy = StrategyScoped
			return assoc, nil
		}
		m.log.Info().Err(err).Msg("scoped join refused, falling back to legacy")
	}
	return m.joinLegacy(ctx, ssid, passphrase)
}

func (m *Manager) scopedSupported(ctx context.Context) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return m.scoped.Supported(ctx)
}

func (m *Manager) tryScoped(ctx context.Context, ssid, passphrase string) (assoc Association, err error) {
	ctx, cancel := context.WithTimeout(ctx, m.joinTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scoped join panicked: %v", r)
		}
	}()
	return m.scoped.Join(ctx, ssid, passphrase)
}

func (m *Manager) joinLegacy(ctx context.Context, ssid, passphrase string) (assoc Association, err error) {
	if m.legacy == nil {
		return assoc, errors.New("no legacy join strategy available")
	}
	// The bound covers both the supplicant calls and the settle wait.
	budget := m.joinTimeout
	if m.settleDelay > 0 {
		budget += m.settleDelay
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("legacy join panicked: %v", r)
		}
	}()

	assoc, err = m.legacy.Join(ctx, ssid, passphrase)
	if err != nil {
		return assoc, err
	}
	assoc.Strategy = StrategyLegacy

	if m.settleDelay > 0 {
		t := time.NewTimer(m.settleDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return assoc, ctx.Err()
		case <-t.C:
		}
	}
	return assoc, nil
}

// StripQuotes removes one pair of surrounding double quotes.
func StripQuotes(s string) string {
	if len(s) > 1 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}
