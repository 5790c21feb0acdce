//go:build !no_automation

package automation

import (
	"context"
	"strings"
	"time"

	"irrigation-go-home/internal/caddy"

	lua "github.com/yuin/gopher-lua"
)

const (
	maxHandlersPerScript = 100
	callTimeout          = 10 * time.Second
)

// registerCaddyModule registers the `caddy` global table in a Lua state.
func registerCaddyModule(L *lua.LState, vm *scriptVM, e *Engine) {
	funcs := map[string]func(*lua.LState) int{
		"on":          func(L *lua.LState) int { return caddyOn(L, vm) },
		"after":       func(L *lua.LState) int { return caddyAfter(L, vm, e) },
		"log":         func(L *lua.LState) int { return caddyLog(L, e) },
		"controllers": func(L *lua.LState) int { return caddyControllers(L, e) },
		"alive":       func(L *lua.LState) int { return caddyAlive(L, vm, e) },
		"status":      func(L *lua.LState) int { return caddyStatus(L, vm, e) },
		"boot_time":   func(L *lua.LState) int { return caddyBootTime(L, vm, e) },
		"zone_names":  func(L *lua.LState) int { return caddyZoneNames(L, vm, e) },
		"sync_clock":  func(L *lua.LState) int { return caddySyncClock(L, vm, e) },
	}
	mod := L.NewTable()
	for name, fn := range funcs {
		mod.RawSetString(name, L.NewFunction(fn))
	}
	L.SetGlobal("caddy", mod)
}

// caddy.on(type, [filter], callback). type "*" matches every event; the
// filter table may carry address and name.
func caddyOn(L *lua.LState, vm *scriptVM) int {
	h := luaEventHandler{eventType: L.CheckString(1)}

	switch L.GetTop() {
	case 2:
		h.fn = L.CheckFunction(2)
	default:
		filter := L.CheckTable(2)
		h.fn = L.CheckFunction(3)
		if v := filter.RawGetString("address"); v != lua.LNil {
			h.address = v.String()
		}
		if v := filter.RawGetString("name"); v != lua.LNil {
			h.name = v.String()
		}
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if len(vm.handlers) >= maxHandlersPerScript {
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	return 0
}

// caddy.after(seconds, callback) runs callback on the script's VM later.
func caddyAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckNumber(1)
	fn := L.CheckFunction(2)

	go func() {
		timer := time.NewTimer(time.Duration(float64(seconds) * float64(time.Second)))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		select {
		case vm.commands <- func(L *lua.LState) {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				e.logger.Error("after callback error", "err", err)
			}
		}:
		default:
			e.logger.Warn("after: command channel full")
		}
	}()
	return 0
}

// caddy.log(msg)
func caddyLog(L *lua.LState, e *Engine) int {
	e.logger.Info("script log", "msg", L.CheckString(1))
	return 0
}

// caddy.controllers() returns a table of known controllers.
func caddyControllers(L *lua.LState, e *Engine) int {
	list, err := e.coord.Controllers()
	tbl := L.NewTable()
	if err != nil {
		e.logger.Warn("list controllers", "err", err)
		L.Push(tbl)
		return 1
	}
	for i, ctrl := range list {
		c := L.NewTable()
		c.RawSetString("address", lua.LString(ctrl.Address))
		c.RawSetString("name", lua.LString(ctrl.Name()))
		c.RawSetString("hostname", lua.LString(ctrl.Hostname))
		c.RawSetString("online", lua.LBool(ctrl.Online))
		c.RawSetString("zone_names", goToLua(L, ctrl.ZoneNames))
		tbl.RawSetInt(i+1, c)
	}
	L.Push(tbl)
	return 1
}

// caddy.alive(target) probes the controller.
func caddyAlive(L *lua.LState, vm *scriptVM, e *Engine) int {
	dev := resolveDevice(L, e)
	if dev == nil {
		L.Push(lua.LFalse)
		return 1
	}
	ctx, cancel := context.WithTimeout(vm.ctx, callTimeout)
	defer cancel()
	L.Push(lua.LBool(dev.IsAlive(ctx)))
	return 1
}

// caddy.status(target) returns the status table, or nil and an error.
func caddyStatus(L *lua.LState, vm *scriptVM, e *Engine) int {
	dev := resolveDevice(L, e)
	if dev == nil {
		return pushError(L, "unknown controller")
	}
	ctx, cancel := context.WithTimeout(vm.ctx, callTimeout)
	defer cancel()
	st, err := dev.Status(ctx)
	if err != nil {
		return pushError(L, err.Error())
	}
	L.Push(goToLua(L, st))
	return 1
}

// caddy.boot_time(target) returns the boot time as RFC 3339.
func caddyBootTime(L *lua.LState, vm *scriptVM, e *Engine) int {
	dev := resolveDevice(L, e)
	if dev == nil {
		return pushError(L, "unknown controller")
	}
	ctx, cancel := context.WithTimeout(vm.ctx, callTimeout)
	defer cancel()
	t, err := dev.BootTime(ctx)
	if err != nil {
		return pushError(L, err.Error())
	}
	L.Push(lua.LString(t.Format(time.RFC3339)))
	return 1
}

// caddy.zone_names(target) reads the zone names from the controller.
func caddyZoneNames(L *lua.LState, vm *scriptVM, e *Engine) int {
	dev := resolveDevice(L, e)
	if dev == nil {
		return pushError(L, "unknown controller")
	}
	ctx, cancel := context.WithTimeout(vm.ctx, callTimeout)
	defer cancel()
	names, err := dev.ZoneNames(ctx)
	if err != nil {
		return pushError(L, err.Error())
	}
	L.Push(goToLua(L, names))
	return 1
}

// caddy.sync_clock(target) sets the controller clock to local time.
func caddySyncClock(L *lua.LState, vm *scriptVM, e *Engine) int {
	dev := resolveDevice(L, e)
	if dev == nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString("unknown controller"))
		return 2
	}
	ctx, cancel := context.WithTimeout(vm.ctx, callTimeout)
	defer cancel()
	if _, err := e.coord.SyncClock(ctx, dev.Address()); err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

func pushError(L *lua.LState, msg string) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(msg))
	return 2
}

// resolveDevice finds the controller named by argument 1, either its
// address or its display name.
func resolveDevice(L *lua.LState, e *Engine) caddy.Device {
	target := L.CheckString(1)
	if dev, ok := e.coord.Device(target); ok {
		return dev
	}
	list, err := e.coord.Controllers()
	if err != nil {
		return nil
	}
	for _, ctrl := range list {
		if strings.EqualFold(ctrl.Name(), target) {
			if dev, ok := e.coord.Device(ctrl.Address); ok {
				return dev
			}
		}
	}
	e.logger.Warn("controller not found", "target", target)
	return nil
}
