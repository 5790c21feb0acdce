package coordinator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"irrigation-go-home/internal/caddy"
	"irrigation-go-home/internal/store"
)

// Scan runs discovery, identifies every controller that answered and
// records the run. Only one scan runs at a time.
func (c *Coordinator) Scan(ctx context.Context) (*store.ScanRecord, error) {
	if !c.scanMu.TryLock() {
		return nil, ErrScanInProgress
	}
	defer c.scanMu.Unlock()

	rec := store.NewScanRecord(c.now())
	c.events.Emit(Event{Type: EventScanStarted, Data: map[string]any{"id": rec.ID}})

	res := c.scanner.Scan(ctx)
	rec.Prefixes = res.Prefixes
	rec.Probes = res.Probes
	rec.Found = []string{}
	for _, dev := range res.Devices {
		c.register(ctx, dev, false)
		rec.Found = append(rec.Found, dev.Address())
	}
	rec.FinishedAt = c.now()

	if err := c.store.SaveScan(rec); err != nil {
		c.logger.Error("save scan", "err", err)
	}
	c.events.Emit(Event{Type: EventScanFinished, Data: rec})
	if err := ctx.Err(); err != nil {
		return rec, err
	}
	return rec, nil
}

// register adds dev to the registry and refreshes its stored identity.
func (c *Coordinator) register(ctx context.Context, dev caddy.Device, manual bool) *store.Controller {
	addr := dev.Address()

	c.mu.Lock()
	_, known := c.devices[addr]
	if !known {
		c.devices[addr] = dev
	} else {
		dev = c.devices[addr]
	}
	c.mu.Unlock()

	now := c.now()
	ctrl, err := c.store.GetController(addr)
	isNew := errors.Is(err, store.ErrNotFound)
	switch {
	case isNew:
		ctrl = &store.Controller{Address: addr, FirstSeen: now}
	case err != nil:
		c.logger.Error("load controller", "addr", addr, "err", err)
		ctrl = &store.Controller{Address: addr, FirstSeen: now}
	}
	ctrl.Manual = ctrl.Manual || manual

	wasOnline := ctrl.Online
	c.identify(ctx, dev, ctrl)
	if err := c.store.SaveController(ctrl); err != nil {
		c.logger.Error("save controller", "addr", addr, "err", err)
	}

	switch {
	case isNew:
		c.logger.Info("controller found", "addr", addr, "hostname", ctrl.Hostname, "online", ctrl.Online)
		c.events.Emit(Event{Type: EventControllerFound, Data: controllerData(ctrl, map[string]any{"online": ctrl.Online})})
	case ctrl.Online && !wasOnline:
		c.events.Emit(Event{Type: EventControllerOnline, Data: controllerData(ctrl, nil)})
	}
	return ctrl
}

// identify fills ctrl from the live controller. Failures leave the previous
// values in place.
func (c *Coordinator) identify(ctx context.Context, dev caddy.Device, ctrl *store.Controller) {
	if !dev.IsAlive(ctx) {
		ctrl.Online = false
		return
	}
	ctrl.Online = true
	ctrl.LastSeen = c.now()

	if p, err := dev.Program(ctx, 1); err != nil {
		c.logger.Warn("read program", "addr", ctrl.Address, "err", err)
	} else {
		ctrl.Hostname = p.Hostname
		ctrl.IPAddress = p.IPAddress
		ctrl.ZoneNames = p.ZoneNames
	}
	if t, err := dev.BootTime(ctx); err != nil {
		c.logger.Warn("read boot time", "addr", ctrl.Address, "err", err)
	} else {
		ctrl.BootTime = t
	}
	if st, err := dev.Status(ctx); err != nil {
		c.logger.Warn("read status", "addr", ctrl.Address, "err", err)
	} else {
		ctrl.Status = st
	}
}

// Poll checks liveness and status of every registered controller.
func (c *Coordinator) Poll(ctx context.Context) {
	for _, addr := range c.Addresses() {
		if ctx.Err() != nil {
			return
		}
		dev, ok := c.Device(addr)
		if !ok {
			continue
		}
		c.pollOne(ctx, dev)
	}
}

func (c *Coordinator) pollOne(ctx context.Context, dev caddy.Device) {
	addr := dev.Address()
	alive := dev.IsAlive(ctx)

	var status map[string]any
	if alive {
		st, err := dev.Status(ctx)
		if err != nil {
			c.logger.Warn("poll status", "addr", addr, "err", err)
		} else {
			status = st
		}
	}

	var wasOnline bool
	var ctrl *store.Controller
	err := c.store.UpdateController(addr, func(sc *store.Controller) error {
		wasOnline = sc.Online
		sc.Online = alive
		if alive {
			sc.LastSeen = c.now()
		}
		if status != nil {
			sc.Status = status
		}
		ctrl = sc
		return nil
	})
	if err != nil {
		c.logger.Error("update controller", "addr", addr, "err", err)
		return
	}

	switch {
	case alive && !wasOnline:
		c.logger.Info("controller online", "addr", addr)
		c.events.Emit(Event{Type: EventControllerOnline, Data: controllerData(ctrl, nil)})
	case !alive && wasOnline:
		c.logger.Info("controller offline", "addr", addr)
		c.events.Emit(Event{Type: EventControllerOffline, Data: controllerData(ctrl, nil)})
	}
	if status != nil {
		c.events.Emit(Event{Type: EventStatusUpdate, Data: controllerData(ctrl, map[string]any{"status": status})})
	}
}

// Add registers a controller by address whether or not it currently
// answers.
func (c *Coordinator) Add(ctx context.Context, addr string) (*store.Controller, error) {
	addr, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	return c.register(ctx, c.factory(addr), true), nil
}

// Remove forgets a controller.
func (c *Coordinator) Remove(addr string) error {
	ctrl, err := c.Controller(addr)
	if err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.devices, addr)
	c.mu.Unlock()
	if err := c.store.DeleteController(addr); err != nil {
		return fmt.Errorf("delete controller: %w", err)
	}
	c.logger.Info("controller removed", "addr", addr)
	c.events.Emit(Event{Type: EventControllerRemoved, Data: controllerData(ctrl, nil)})
	return nil
}

// Rename sets a controller's friendly name. An empty name clears it.
func (c *Coordinator) Rename(addr, name string) (*store.Controller, error) {
	var ctrl *store.Controller
	err := c.store.UpdateController(addr, func(sc *store.Controller) error {
		sc.FriendlyName = name
		ctrl = sc
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", addr, ErrUnknownController)
	}
	if err != nil {
		return nil, err
	}
	c.events.Emit(Event{Type: EventControllerUpdated, Data: controllerData(ctrl, nil)})
	return ctrl, nil
}

// SyncClock sets the controller's clock to the local time.
func (c *Coordinator) SyncClock(ctx context.Context, addr string) (time.Time, error) {
	dev, err := c.device(addr)
	if err != nil {
		return time.Time{}, err
	}
	now := c.now()
	if !dev.SetSystemTime(ctx, now) {
		return time.Time{}, fmt.Errorf("set clock on %s: %w", addr, ErrRejected)
	}
	c.logger.Info("clock set", "addr", addr, "time", now)
	c.emitFor(addr, EventClockSet, map[string]any{"time": now.Format(time.RFC3339)})
	return now, nil
}

// SetNTP updates the controller's network time settings.
func (c *Coordinator) SetNTP(ctx context.Context, addr string, s caddy.NTPSettings) error {
	dev, err := c.device(addr)
	if err != nil {
		return err
	}
	if !dev.SetNTP(ctx, s) {
		return fmt.Errorf("set ntp on %s: %w", addr, ErrRejected)
	}
	c.emitFor(addr, EventControllerUpdated, map[string]any{"ntp": s})
	return nil
}

// SetZoneNames renames the controller's zones.
func (c *Coordinator) SetZoneNames(ctx context.Context, addr string, names []string) error {
	dev, err := c.device(addr)
	if err != nil {
		return err
	}
	if !dev.SetZoneNames(ctx, names) {
		return fmt.Errorf("set zone names on %s: %w", addr, ErrRejected)
	}
	names = slices.Clone(names)
	err = c.store.UpdateController(addr, func(sc *store.Controller) error {
		sc.ZoneNames = names
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		c.logger.Error("save zone names", "addr", addr, "err", err)
	}
	c.logger.Info("zone names changed", "addr", addr, "zones", len(names))
	c.emitFor(addr, EventZoneNamesChanged, map[string]any{"zone_names": names})
	return nil
}

func (c *Coordinator) emitFor(addr, typ string, extra map[string]any) {
	ctrl, err := c.store.GetController(addr)
	if err != nil {
		ctrl = &store.Controller{Address: addr}
	}
	c.events.Emit(Event{Type: typ, Data: controllerData(ctrl, extra)})
}
