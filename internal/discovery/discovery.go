// Package discovery finds IrrigationCaddy controllers by sweeping the
// private /24 subnets the host is attached to.
package discovery

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"irrigation-go-home/internal/caddy"
)

// DefaultConcurrency is the number of liveness probes in flight per sweep.
const DefaultConcurrency = 32

// Factory builds a device handle for a candidate address.
type Factory func(addr string) caddy.Device

// Option configures a Scanner.
type Option func(*Scanner)

// WithFactory overrides how candidate devices are constructed.
func WithFactory(f Factory) Option {
	return func(s *Scanner) { s.factory = f }
}

// WithInterfaceAddrs overrides the source of local addresses.
func WithInterfaceAddrs(fn func() ([]net.Addr, error)) Option {
	return func(s *Scanner) { s.interfaceAddrs = fn }
}

// WithConcurrency sets the probe limit per sweep.
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the scanner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClientOptions are applied to every client built by the default factory.
func WithClientOptions(opts ...caddy.Option) Option {
	return func(s *Scanner) { s.clientOpts = append(s.clientOpts, opts...) }
}

// Scanner sweeps local subnets for live controllers.
type Scanner struct {
	factory        Factory
	interfaceAddrs func() ([]net.Addr, error)
	concurrency    int
	clientOpts     []caddy.Option
	logger         *slog.Logger
}

// Result describes one discovery run.
type Result struct {
	Prefixes []string
	Devices  []caddy.Device
	Probes   int
	Elapsed  time.Duration
}

// New creates a Scanner.
func New(opts ...Option) *Scanner {
	s := &Scanner{
		interfaceAddrs: net.InterfaceAddrs,
		concurrency:    DefaultConcurrency,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "discovery")
	if s.factory == nil {
		clientOpts := append([]caddy.Option{caddy.WithLogger(s.logger)}, s.clientOpts...)
		s.factory = func(addr string) caddy.Device {
			return caddy.New(addr, clientOpts...)
		}
	}
	return s
}

// Discover is a convenience wrapper that sweeps with default settings.
// When debug is non-nil every HTTP exchange is dumped to it.
func Discover(ctx context.Context, debug io.Writer) []caddy.Device {
	var opts []Option
	if debug != nil {
		opts = append(opts, WithClientOptions(caddy.WithDebug(debug)))
	}
	return New(opts...).Discover(ctx)
}

// Discover returns every controller that answered its liveness probe.
func (s *Scanner) Discover(ctx context.Context) []caddy.Device {
	return s.Scan(ctx).Devices
}

// Scan sweeps each local /24 in turn. Failing to list interfaces yields an
// empty result.
func (s *Scanner) Scan(ctx context.Context) Result {
	start := time.Now()
	var res Result

	addrs, err := s.interfaceAddrs()
	if err != nil {
		s.logger.Warn("list interface addresses", "err", err)
		return res
	}
	res.Prefixes = Prefixes(LocalAddresses(addrs))
	if len(res.Prefixes) == 0 {
		s.logger.Info("no private IPv4 address, nothing to scan")
	}

	for _, prefix := range res.Prefixes {
		if ctx.Err() != nil {
			break
		}
		devices, probes := s.Sweep(ctx, prefix)
		res.Devices = append(res.Devices, devices...)
		res.Probes += probes
	}
	res.Elapsed = time.Since(start)
	s.logger.Info("scan finished", "prefixes", len(res.Prefixes), "found", len(res.Devices), "probes", res.Probes, "elapsed", res.Elapsed)
	return res
}

// Sweep probes prefix.0 through prefix.255 and returns the live devices in
// address order along with the number of probes issued.
func (s *Scanner) Sweep(ctx context.Context, prefix string) ([]caddy.Device, int) {
	s.logger.Debug("sweeping", "prefix", prefix+".0/24")

	var slots [256]caddy.Device
	var probes atomic.Int32
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for octet := range len(slots) {
		if ctx.Err() != nil {
			break
		}
		addr := prefix + "." + strconv.Itoa(octet)
		g.Go(func() error {
			dev := s.factory(addr)
			probes.Add(1)
			if dev.IsAlive(ctx) {
				slots[octet] = dev
				s.logger.Info("controller found", "addr", addr)
			}
			return nil
		})
	}
	g.Wait()

	var found []caddy.Device
	for _, dev := range slots {
		if dev != nil {
			found = append(found, dev)
		}
	}
	return found, int(probes.Load())
}

// LocalAddresses returns the private IPv4 addresses among addrs, without
// duplicates and in their original order.
func LocalAddresses(addrs []net.Addr) []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		default:
			continue
		}
		ip4 := ip.To4()
		if ip4 == nil || !ip4.IsPrivate() {
			continue
		}
		s := ip4.String()
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Prefixes maps IPv4 addresses to their distinct /24 prefixes ("a.b.c").
func Prefixes(addrs []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range addrs {
		i := strings.LastIndexByte(a, '.')
		if i < 0 {
			continue
		}
		p := a[:i]
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
