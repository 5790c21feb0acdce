package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"irrigation-go-home/internal/caddy"
	"irrigation-go-home/internal/discovery"
	"irrigation-go-home/internal/store"
)

var (
	// ErrUnknownController is returned for addresses not in the registry.
	ErrUnknownController = errors.New("unknown controller")
	// ErrRejected is returned when a controller does not accept a write.
	ErrRejected = errors.New("controller rejected request")
	// ErrScanInProgress is returned when a scan is requested while one runs.
	ErrScanInProgress = errors.New("scan already in progress")
)

// Config holds coordinator configuration.
type Config struct {
	ScanInterval    time.Duration // 0 disables periodic rescans
	PollInterval    time.Duration // 0 disables polling
	StaticAddresses []string
}

// Scanner finds live controllers.
type Scanner interface {
	Scan(ctx context.Context) discovery.Result
}

// ParseAddress validates "a.b.c.d" or "a.b.c.d:port" and returns the
// canonical form. Controllers are IPv4 only; IPv4-mapped IPv6 literals are
// reduced to dotted form.
func ParseAddress(s string) (string, error) {
	host, port := s, ""
	if h, p, err := net.SplitHostPort(s); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 65535 {
			return "", fmt.Errorf("parse address %q: invalid port %q", s, p)
		}
		host, port = h, strconv.Itoa(n)
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return "", fmt.Errorf("parse address %q: not an IPv4 address", s)
	}
	if port == "" {
		return ip.To4().String(), nil
	}
	return net.JoinHostPort(ip.To4().String(), port), nil
}

// Coordinator tracks the controllers on the network and keeps their state
// in the store.
type Coordinator struct {
	scanner Scanner
	store   store.Store
	events  *EventBus
	factory discovery.Factory
	logger  *slog.Logger
	config  Config
	now     func() time.Time

	mu      sync.RWMutex
	devices map[string]caddy.Device

	scanMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Coordinator. factory builds handles for persisted and
// manually added addresses.
func New(scanner Scanner, st store.Store, events *EventBus, factory discovery.Factory, cfg Config, logger *slog.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		scanner: scanner,
		store:   st,
		events:  events,
		factory: factory,
		logger:  logger.With("component", "coordinator"),
		config:  cfg,
		now:     time.Now,
		devices: make(map[string]caddy.Device),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Context returns the coordinator's context, which is cancelled on Stop().
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Start loads persisted controllers, registers static addresses and starts
// the scan and poll loops. The initial scan runs in the background.
func (c *Coordinator) Start(ctx context.Context) error {
	saved, err := c.store.ListControllers()
	if err != nil {
		return fmt.Errorf("load controllers: %w", err)
	}
	c.mu.Lock()
	for _, ctrl := range saved {
		c.devices[ctrl.Address] = c.factory(ctrl.Address)
	}
	c.mu.Unlock()
	c.logger.Info("loaded controllers", "count", len(saved))

	for _, addr := range c.config.StaticAddresses {
		if _, err := c.Add(ctx, addr); err != nil {
			c.logger.Warn("static controller", "addr", addr, "err", err)
		}
	}

	c.wg.Add(1)
	go c.run()
	return nil
}

// Stop cancels background loops and waits for them to exit.
func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) run() {
	defer c.wg.Done()

	if _, err := c.Scan(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("initial scan", "err", err)
	}

	// A nil channel disables the corresponding loop.
	var scan, poll <-chan time.Time
	if d := c.config.ScanInterval; d > 0 {
		t := time.NewTicker(d)
		defer t.Stop()
		scan = t.C
	}
	if d := c.config.PollInterval; d > 0 {
		t := time.NewTicker(d)
		defer t.Stop()
		poll = t.C
	}
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-scan:
			if _, err := c.Scan(c.ctx); err != nil && !errors.Is(err, ErrScanInProgress) {
				c.logger.Error("scan", "err", err)
			}
		case <-poll:
			c.Poll(c.ctx)
		}
	}
}

// Store returns the store.
func (c *Coordinator) Store() store.Store {
	return c.store
}

// Events returns the event bus.
func (c *Coordinator) Events() *EventBus {
	return c.events
}

// Device returns the handle for a registered address.
func (c *Coordinator) Device(addr string) (caddy.Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	dev, ok := c.devices[addr]
	return dev, ok
}

// Addresses returns the registered addresses in sorted order.
func (c *Coordinator) Addresses() []string {
	c.mu.RLock()
	addrs := make([]string, 0, len(c.devices))
	for a := range c.devices {
		addrs = append(addrs, a)
	}
	c.mu.RUnlock()
	sort.Strings(addrs)
	return addrs
}

// Controllers returns the stored controllers sorted by address.
func (c *Coordinator) Controllers() ([]*store.Controller, error) {
	list, err := c.store.ListControllers()
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Address < list[j].Address })
	return list, nil
}

// Controller returns the stored state for addr.
func (c *Coordinator) Controller(addr string) (*store.Controller, error) {
	ctrl, err := c.store.GetController(addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", addr, ErrUnknownController)
	}
	return ctrl, err
}

func (c *Coordinator) device(addr string) (caddy.Device, error) {
	dev, ok := c.Device(addr)
	if !ok {
		return nil, fmt.Errorf("%s: %w", addr, ErrUnknownController)
	}
	return dev, nil
}

func controllerData(ctrl *store.Controller, extra map[string]any) map[string]any {
	data := map[string]any{
		"address": ctrl.Address,
		"name":    ctrl.Name(),
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}
