// Package scanner finds backends on the local /24 by probing the fixed
// service port of every neighbour.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/eja/tazlink/internal/credential"
	"github.com/eja/tazlink/internal/dispatch"
	"github.com/eja/tazlink/internal/status"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultName is reported for hosts whose status carries no name.
	DefaultName = "Taz Node"

	defaultWorkers        = 30
	defaultBudget         = 10 * time.Second
	defaultConnectTimeout = 200 * time.Millisecond
	defaultHTTPConnect    = 1000 * time.Millisecond
	defaultHTTPRead       = 5000 * time.Millisecond
)

// ErrMalformedAddress is returned for a local address that is not a dotted
// quad.
var ErrMalformedAddress = errors.New("malformed local address")

// CancelFunc ends a scan early. onFinish still fires exactly once.
type CancelFunc func()

// Job is one subnet sweep derived from the local address.
type Job struct {
	Prefix  string
	Exclude int
}

// NewJob derives the sweep for localAddress: its first three octets and its
// own last octet, which is never probed.
func NewJob(localAddress string) (Job, error) {
	octets, ok := credential.ParseOctets(localAddress)
	if !ok {
		return Job{}, fmt.Errorf("%w: %q", ErrMalformedAddress, localAddress)
	}
	return Job{
		Prefix:  fmt.Sprintf("%d.%d.%d", octets[0], octets[1], octets[2]),
		Exclude: octets[3],
	}, nil
}

// Targets lists the host addresses .1 through .254 except the excluded one.
func (j Job) Targets() []string {
	targets := make([]string, 0, 254)
	for i := 1; i <= 254; i++ {
		if i == j.Exclude {
			continue
		}
		targets = append(targets, j.Prefix+"."+strconv.Itoa(i))
	}
	return targets
}

// DiscoveredHost is a neighbour that accepted a connection on the service port.
type DiscoveredHost struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// DialFunc opens a connection; net.Dialer.DialContext satisfies it.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options configures a Scanner. Zero values take the defaults.
type Options struct {
	Port           int
	Workers        int
	Budget         time.Duration
	ConnectTimeout time.Duration

	// Dial is used for the reachability probe. Client is used for the
	// identity request; it should carry its own connect and read timeouts.
	Dial   DialFunc
	Client *http.Client

	Executor dispatch.Executor
	Logger   zerolog.Logger
}

// Scanner sweeps subnets for backends.
type Scanner struct {
	port           int
	workers        int
	budget         time.Duration
	connectTimeout time.Duration
	dial           DialFunc
	client         *http.Client
	exec           dispatch.Executor
	log            zerolog.Logger
}

// New creates a scanner.
func New(opts Options) *Scanner {
	s := &Scanner{
		port:           opts.Port,
		workers:        opts.Workers,
		budget:         opts.Budget,
		connectTimeout: opts.ConnectTimeout,
		dial:           opts.Dial,
		client:         opts.Client,
		exec:           opts.Executor,
		log:            opts.Logger,
	}
	if s.port <= 0 {
		s.port = status.Port
	}
	if s.workers <= 0 {
		s.workers = defaultWorkers
	}
	if s.budget <= 0 {
		s.budget = defaultBudget
	}
	if s.connectTimeout <= 0 {
		s.connectTimeout = defaultConnectTimeout
	}
	if s.dial == nil {
		s.dial = (&net.Dialer{}).DialContext
	}
	if s.client == nil {
		s.client = status.NewClient(defaultHTTPConnect, defaultHTTPRead)
	}
	if s.exec == nil {
		s.exec = dispatch.Inline{}
	}
	return s
}

// Scan sweeps the /24 of localAddress in the background. onFound fires for
// each responsive host; onFinish fires exactly once, when every probe is done
// or the time budget runs out, and no onFound follows it.
func (s *Scanner) Scan(localAddress string, onFound func(DiscoveredHost), onFinish func()) CancelFunc {
	return s.ScanContext(context.Background(), localAddress, onFound, onFinish)
}

// ScanContext is Scan bounded by ctx as well as the time budget.
func (s *Scanner) ScanContext(ctx context.Context, localAddress string, onFound func(DiscoveredHost), onFinish func()) CancelFunc {
	ctx, cancel := context.WithTimeout(ctx, s.budget)

	job, err := NewJob(localAddress)
	if err != nil {
		cancel()
		s.log.Debug().Err(err).Msg("scan skipped")
		s.exec.Post(onFinish)
		return func() {}
	}

	// Posting happens outside mu so that a full executor queue cannot hold
	// up finish. Delivery order is enforced when the callbacks run: a found
	// callback that reaches the executor after onFinish is dropped.
	var (
		mu        sync.Mutex
		finished  bool
		deliver   sync.Mutex
		delivered bool
	)
	report := func(h DiscoveredHost) {
		mu.Lock()
		done := finished
		mu.Unlock()
		if done {
			return
		}
		s.exec.Post(func() {
			deliver.Lock()
			defer deliver.Unlock()
			if !delivered {
				onFound(h)
			}
		})
	}
	finish := func() {
		mu.Lock()
		done := finished
		finished = true
		mu.Unlock()
		if done {
			return
		}
		s.exec.Post(func() {
			deliver.Lock()
			defer deliver.Unlock()
			delivered = true
			onFinish()
		})
	}

	go func() {
		defer cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			var g errgroup.Group
			g.SetLimit(s.workers)
			for _, target := range job.Targets() {
				if ctx.Err() != nil {
					break
				}
				g.Go(func() error {
					s.probe(ctx, target, report)
					return nil
				})
			}
			_ = g.Wait()
		}()

		select {
		case <-done:
			s.log.Debug().Str("subnet", job.Prefix).Msg("scan complete")
		case <-ctx.Done():
			s.log.Debug().Str("subnet", job.Prefix).Msg("scan budget exhausted")
		}
		finish()
	}()

	return CancelFunc(cancel)
}

func (s *Scanner) probe(ctx context.Context, ip string, report func(DiscoveredHost)) {
	dctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	conn, err := s.dial(dctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(s.port)))
	cancel()
	if err != nil {
		return
	}
	_ = conn.Close()

	name := s.identify(ctx, ip)
	if ctx.Err() != nil {
		return
	}
	report(DiscoveredHost{Address: ip, Name: name})
}

func (s *Scanner) identify(ctx context.Context, ip string) string {
	body, err := status.Get(ctx, s.client, status.URLWithPort(ip, s.port))
	if err != nil {
		return DefaultName
	}
	return status.NameOr(body, DefaultName)
}
